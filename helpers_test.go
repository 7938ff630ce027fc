package identity_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	identity "github.com/sleeved/go-identity"

	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteCreateUsers = `CREATE TABLE users (
    id TEXT NOT NULL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    full_name TEXT,
    phone_number TEXT,
    password_hash TEXT,
    is_verified BOOLEAN NOT NULL DEFAULT FALSE,
    verification_code TEXT,
    verification_expires_at TIMESTAMP NULL,
    provider TEXT,
    provider_id TEXT,
    avatar_url TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

	sqliteCreateAccessTokens = `CREATE TABLE access_tokens (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    token_hash TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    abilities TEXT NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    last_used_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`
)

func setupRepo(t *testing.T) identity.RepositoryManager {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec(sqliteCreateUsers)
	require.NoError(t, err)
	_, err = bunDB.Exec(sqliteCreateAccessTokens)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = bunDB.Close()
		_ = db.Close()
	})

	return identity.NewRepositoryManager(bunDB)
}

func seedUser(t *testing.T, repo identity.RepositoryManager, user *identity.User) *identity.User {
	t.Helper()

	if user.PasswordHash == "" && user.Provider == "" {
		hash, err := identity.HashPassword("super-secret-pass")
		require.NoError(t, err)
		user.PasswordHash = hash
	}

	created, err := repo.Users().Create(context.Background(), user)
	require.NoError(t, err)
	return created
}

// captureMailer records dispatched mail so tests can assert on it.
type captureMailer struct {
	mu   sync.Mutex
	sent []identity.Mail
	fail error
}

func (m *captureMailer) Send(ctx context.Context, mail identity.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, mail)
	return nil
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *captureMailer) last() identity.Mail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sent) == 0 {
		return identity.Mail{}
	}
	return m.sent[len(m.sent)-1]
}

func newTestMailer(t *testing.T, sink identity.Mailer) *identity.VerificationMailer {
	t.Helper()

	mailer, err := identity.NewVerificationMailer(sink, identity.MailConfig{}, nil)
	require.NoError(t, err)
	return mailer
}

func fixedNow(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}
