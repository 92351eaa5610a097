package catalog

import (
	"context"
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

type stubService struct {
	owner  int64
	status func(ownerID, id int64, status string) (*Book, error)
}

func (s *stubService) ListBooks(_ context.Context, ownerID int64) ([]Book, error) {
	s.owner = ownerID
	return []Book{{ID: 1, OwnerID: ownerID, Title: "Dune", Author: "Herbert", Status: StatusAvailable}}, nil
}

func (s *stubService) CreateBook(_ context.Context, ownerID int64, title, author string) (*Book, error) {
	if title == "" {
		return nil, ErrInvalidInput
	}
	return &Book{ID: 2, OwnerID: ownerID, Title: title, Author: author, Status: StatusAvailable}, nil
}

func (s *stubService) UpdateStatus(_ context.Context, ownerID, id int64, status string) (*Book, error) {
	return s.status(ownerID, id, status)
}

func (s *stubService) Search(_ context.Context, q string) ([]Book, error) {
	if q == "" {
		return nil, ErrEmptyQuery
	}
	return []Book{}, nil
}

type verifierFunc func(ctx context.Context, token string) (auth.Result, error)

func (f verifierFunc) Verify(ctx context.Context, token string) (auth.Result, error) {
	return f(ctx, token)
}

// fakeIdentity accepts "tok-<id>" tokens and is unreachable for "down".
var fakeIdentity = verifierFunc(func(_ context.Context, token string) (auth.Result, error) {
	switch token {
	case "down":
		return auth.Result{}, auth.ErrVerifierUnavailable
	case "tok-1":
		return auth.Result{Valid: true, User: &auth.Principal{ID: 1, Username: "alice"}}, nil
	case "tok-2":
		return auth.Result{Valid: true, User: &auth.Principal{ID: 2, Username: "bob"}}, nil
	}
	return auth.Result{Valid: false}, nil
})

func newRouter(svc Service) http.Handler {
	r := chi.NewRouter()
	NewHandler(svc, zap.NewNop()).Mount(r, auth.Middleware(fakeIdentity, zap.NewNop()))
	return r
}

func do(h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleListBooks(t *testing.T) {
	svc := &stubService{}
	r := newRouter(svc)

	rec := do(r, http.MethodGet, "/books", "", "tok-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), svc.owner)
	assert.Contains(t, rec.Body.String(), `"owner_id":1`)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/books", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/books", "", "junk").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/books", "", "down").Code)
}

func TestHandleCreateBook(t *testing.T) {
	r := newRouter(&stubService{})

	rec := do(r, http.MethodPost, "/books", `{"title":"Dune","author":"Herbert"}`, "tok-2")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"owner_id":2`)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/books", `{"author":"Herbert"}`, "tok-2").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/books", `[`, "tok-2").Code)
}

func TestHandleUpdateStatus(t *testing.T) {
	svc := &stubService{status: func(ownerID, id int64, status string) (*Book, error) {
		switch {
		case ownerID != 1:
			return nil, ErrNotFoundOrUnauthorized
		case id == 99:
			return nil, errors.New("connection reset")
		}
		return &Book{ID: id, OwnerID: ownerID, Status: status, CreatedAt: time.Now()}, nil
	}}
	r := newRouter(svc)

	rec := do(r, http.MethodPut, "/books/5/status", `{"status":"reserved"}`, "tok-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"reserved"`)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPut, "/books/5/status", `{"status":"x"}`, "tok-2").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/books/zero/status", `{"status":"x"}`, "tok-1").Code)

	rec = do(r, http.MethodPut, "/books/99/status", `{"status":"x"}`, "tok-1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestHandleSearch(t *testing.T) {
	r := newRouter(&stubService{})
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/books/search?q=dune", "", "tok-1").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/books/search", "", "tok-1").Code)
}
