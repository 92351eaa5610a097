package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bookswap/internal/auth"
)

// stubService lets each test script the service's answers.
type stubService struct {
	tokens   *auth.TokenManager
	register func(RegisterInput) (*Registration, error)
	login    func(string, string) (string, error)
	deleted  []int64
	deleteFn func(callerID, id int64) error
}

func (s *stubService) Register(_ context.Context, in RegisterInput) (*Registration, error) {
	return s.register(in)
}

func (s *stubService) Login(_ context.Context, u, p string) (string, error) { return s.login(u, p) }

func (s *stubService) Validate(ctx context.Context, token string) auth.Result {
	res, _ := s.tokens.Verify(ctx, token)
	return res
}

func (s *stubService) ListUsers(context.Context) ([]User, error) {
	return []User{{ID: 1, Username: "alice"}}, nil
}

func (s *stubService) DeleteUser(_ context.Context, callerID, id int64) error {
	if s.deleteFn != nil {
		return s.deleteFn(callerID, id)
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func newRouter(svc *stubService) http.Handler {
	r := chi.NewRouter()
	h := NewHandler(svc, zap.NewNop())
	h.Mount(r, auth.Middleware(svc.tokens, zap.NewNop(), auth.WithRejectStatus(http.StatusForbidden)))
	return r
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleRegister(t *testing.T) {
	svc := &stubService{
		tokens: auth.NewTokenManager("h", time.Hour),
		register: func(in RegisterInput) (*Registration, error) {
			if in.Username == "taken" {
				return nil, ErrDuplicateUser
			}
			return &Registration{Token: "tok", User: &User{ID: 7, Username: in.Username}}, nil
		},
	}
	r := newRouter(svc)

	rec := do(t, r, http.MethodPost, "/register", `{"username":"eve","email":"e@x","password":"pw"}`, "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"token":"tok","user":{"id":7,"username":"eve","email":"","created_at":"0001-01-01T00:00:00Z"}}`, rec.Body.String())

	rec = do(t, r, http.MethodPost, "/register", `{"username":"taken","email":"t@x","password":"pw"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/register", `{not json`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLogin(t *testing.T) {
	svc := &stubService{
		tokens: auth.NewTokenManager("h", time.Hour),
		login: func(u, p string) (string, error) {
			switch u {
			case "alice":
				return "tok", nil
			case "busy":
				return "", ErrRateLimited
			case "broken":
				return "", errors.New("db down")
			}
			return "", ErrInvalidCredentials
		},
	}
	r := newRouter(svc)

	tests := []struct {
		user string
		want int
	}{
		{"alice", http.StatusOK},
		{"mallory", http.StatusUnauthorized},
		{"busy", http.StatusTooManyRequests},
		{"broken", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			rec := do(t, r, http.MethodPost, "/login", `{"username":"`+tt.user+`","password":"pw"}`, "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := do(t, r, http.MethodPost, "/login", `{"username":"broken","password":"pw"}`, "")
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestHandleValidate(t *testing.T) {
	tokens := auth.NewTokenManager("h", time.Hour)
	r := newRouter(&stubService{tokens: tokens})
	good, err := tokens.Issue(3, "carol")
	require.NoError(t, err)

	rec := do(t, r, http.MethodPost, "/validate", `{"token":"`+good+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res auth.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Valid)
	assert.Equal(t, "carol", res.User.Username)

	rec = do(t, r, http.MethodPost, "/validate", ``, good)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Valid)

	rec = do(t, r, http.MethodPost, "/validate", `{"token":"garbage"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":false}`, rec.Body.String())
}

func TestHandleListUsersAuth(t *testing.T) {
	tokens := auth.NewTokenManager("h", time.Hour)
	r := newRouter(&stubService{tokens: tokens})
	good, _ := tokens.Issue(1, "alice")

	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodGet, "/users", "", "").Code)
	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodGet, "/users", "", "junk").Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/users", "", good).Code)
}

func TestHandleDeleteUser(t *testing.T) {
	tokens := auth.NewTokenManager("h", time.Hour)
	svc := &stubService{tokens: tokens}
	r := newRouter(svc)
	good, _ := tokens.Issue(4, "dan")

	rec := do(t, r, http.MethodDelete, "/delete-user/4", "", good)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{4}, svc.deleted)

	svc.deleteFn = func(callerID, id int64) error {
		if callerID != id {
			return ErrForbidden
		}
		return ErrUserNotFound
	}
	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodDelete, "/delete-user/5", "", good).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodDelete, "/delete-user/4", "", good).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodDelete, "/delete-user/abc", "", good).Code)
}
