package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"bookswap/internal/auth"
	"bookswap/internal/broker"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(event string, _ interface{}) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, broker.Fact) error { return broker.ErrNotConnected }

type fixture struct {
	svc      Service
	mock     sqlmock.Sqlmock
	tokens   *auth.TokenManager
	queue    *broker.MemoryQueue
	notifier *recordingNotifier
}

func newFixture(t *testing.T, limiter *rate.Limiter) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		mock:     mock,
		tokens:   auth.NewTokenManager("identity-test-secret", time.Hour),
		queue:    broker.NewMemoryQueue(),
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(sqlx.NewDb(db, "postgres"), f.tokens, f.queue, f.notifier, limiter, zap.NewNop())
	return f
}

var userColumns = []string{"id", "username", "email", "full_name", "city", "created_at"}

func TestRegister(t *testing.T) {
	f := newFixture(t, nil)
	city := "Lyon"

	f.mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("alice", "alice@example.com", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(1, "alice", "alice@example.com", nil, city, time.Now()))

	reg, err := f.svc.Register(context.Background(), RegisterInput{
		Username: "alice", Email: "alice@example.com", Password: "pw", City: &city,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), reg.User.ID)
	require.NotNil(t, reg.User.City)
	assert.Equal(t, "Lyon", *reg.User.City)

	res, err := f.tokens.Verify(context.Background(), reg.Token)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "alice", res.User.Username)

	msgs := f.queue.Drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, broker.UserCreated, msgs[0].Type)
	var published User
	require.NoError(t, json.Unmarshal(msgs[0].Data, &published))
	assert.Equal(t, "alice", published.Username)
	assert.Equal(t, []string{"user_created"}, f.notifier.events)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegisterNeverSerialisesPasswordHash(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(2, "bob", "bob@example.com", nil, nil, time.Now()))

	reg, err := f.svc.Register(context.Background(), RegisterInput{Username: "bob", Email: "bob@example.com", Password: "secret"})
	require.NoError(t, err)

	body, err := json.Marshal(reg)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "password")
	assert.NotContains(t, string(body), "argon2id")
}

func TestRegisterDuplicate(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := f.svc.Register(context.Background(), RegisterInput{Username: "alice", Email: "a@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrDuplicateUser)
	assert.Empty(t, f.queue.Drain())
	assert.Empty(t, f.notifier.events)
}

func TestRegisterRequiresFields(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Register(context.Background(), RegisterInput{Username: "  ", Email: "a@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegisterSurvivesBrokerOutage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	notifier := &recordingNotifier{}
	svc := NewService(sqlx.NewDb(db, "postgres"), auth.NewTokenManager("s", time.Hour), failingPublisher{}, notifier, nil, zap.NewNop())
	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(3, "carol", "c@example.com", nil, nil, time.Now()))

	reg, err := svc.Register(context.Background(), RegisterInput{Username: "carol", Email: "c@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), reg.User.ID)
	assert.Equal(t, []string{"user_created"}, notifier.events)
}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)
	hash, err := hashPassword("correct horse")
	require.NoError(t, err)

	f.mock.ExpectQuery(`SELECT id, username, password_hash FROM users WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash"}).AddRow(1, "alice", hash))

	token, err := f.svc.Login(context.Background(), "alice", "correct horse")
	require.NoError(t, err)

	res := f.svc.Validate(context.Background(), token)
	assert.True(t, res.Valid)
	assert.Equal(t, int64(1), res.User.ID)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t, nil)
	hash, err := hashPassword("correct horse")
	require.NoError(t, err)

	f.mock.ExpectQuery(`SELECT (.+) FROM users`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash"}).AddRow(1, "alice", hash))
	f.mock.ExpectQuery(`SELECT (.+) FROM users`).
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	_, wrongPassword := f.svc.Login(context.Background(), "alice", "battery staple")
	_, unknownUser := f.svc.Login(context.Background(), "nobody", "battery staple")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestLoginRateLimited(t *testing.T) {
	f := newFixture(t, rate.NewLimiter(rate.Limit(0), 0))
	_, err := f.svc.Login(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestValidateRejectsGarbage(t *testing.T) {
	f := newFixture(t, nil)
	res := f.svc.Validate(context.Background(), "not-a-token")
	assert.False(t, res.Valid)
	assert.Nil(t, res.User)
}

func TestListUsers(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectQuery(`SELECT (.+) FROM users ORDER BY id`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(1, "alice", "a@example.com", nil, nil, time.Now()).
			AddRow(2, "bob", "b@example.com", "Bob B", nil, time.Now()))

	users, err := f.svc.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[1].Username)
	require.NotNil(t, users[1].FullName)
	assert.Equal(t, "Bob B", *users[1].FullName)
}

func TestDeleteUser(t *testing.T) {
	t.Run("self", func(t *testing.T) {
		f := newFixture(t, nil)
		f.mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
			WithArgs(int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, f.svc.DeleteUser(context.Background(), 5, 5))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("someone else", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.ErrorIs(t, f.svc.DeleteUser(context.Background(), 5, 6), ErrForbidden)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("already gone", func(t *testing.T) {
		f := newFixture(t, nil)
		f.mock.ExpectExec(`DELETE FROM users`).
			WithArgs(int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, f.svc.DeleteUser(context.Background(), 5, 5), ErrUserNotFound)
	})
}
