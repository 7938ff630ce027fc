package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var markUserVerifiedSQL = `UPDATE "users" AS "usr"
SET
	"is_verified" = TRUE,
	"verification_code" = NULL,
	"verification_expires_at" = NULL,
	"updated_at" = ?
WHERE
	"usr"."id" = ?
RETURNING *;`

var setVerificationCodeSQL = `UPDATE "users" AS "usr"
SET
	"verification_code" = ?,
	"verification_expires_at" = ?,
	"updated_at" = ?
WHERE
	"usr"."id" = ?
RETURNING *;`

var linkProviderSQL = `UPDATE "users" AS "usr"
SET
	"provider" = ?,
	"provider_id" = ?,
	"avatar_url" = COALESCE(NULLIF("usr"."avatar_url", ''), ?),
	"is_verified" = TRUE,
	"updated_at" = ?
WHERE
	"usr"."id" = ?
RETURNING *;`

// Users is the identity repository. Lookups that feed a conditional write
// have Tx variants so workflows can keep read and write in one atomic unit.
type Users interface {
	repository.Repository[*User]

	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByProviderTx(ctx context.Context, tx bun.IDB, provider, providerUserID string) (*User, error)
	GetByEmailAndCodeTx(ctx context.Context, tx bun.IDB, email, code string, now time.Time) (*User, error)

	MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (*User, error)
	SetVerificationCodeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, code string, expiresAt, now time.Time) (*User, error)
	LinkProviderTx(ctx context.Context, tx bun.IDB, id uuid.UUID, provider, providerUserID, avatarURL string, now time.Time) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

// NewUsersRepository builds the Users repository over the given database.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

// CreateTx inserts a user. A unique-constraint collision on the normalized
// email surfaces as ErrDuplicateEmail carrying the offending address.
func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)

	created, err := a.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, NewDuplicateEmailError(record.Email)
		}
		return nil, err
	}

	return created, nil
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": NormalizeEmail(email)})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) GetByProviderTx(ctx context.Context, tx bun.IDB, provider, providerUserID string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.provider = ?", provider).
		Where("?TableAlias.provider_id = ?", providerUserID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"provider":    provider,
					"provider_id": providerUserID,
				})
		}
		return nil, err
	}

	return record, nil
}

// GetByEmailAndCodeTx matches email, code, and a still-live expiry in a
// single query. Wrong code, expired code, and unknown email are all the
// same miss to the caller.
func (a *users) GetByEmailAndCodeTx(ctx context.Context, tx bun.IDB, email, code string, now time.Time) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Where("?TableAlias.verification_code = ?", code).
		Where("?TableAlias.verification_expires_at > ?", now).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": NormalizeEmail(email)})
		}
		return nil, err
	}

	return record, nil
}

// MarkVerifiedTx flips is_verified and clears the pending code in one
// statement, keeping the both-or-neither invariant on code and expiry.
func (a *users) MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (*User, error) {
	return a.rawOne(ctx, tx, markUserVerifiedSQL, now, id.String())
}

func (a *users) SetVerificationCodeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, code string, expiresAt, now time.Time) (*User, error) {
	return a.rawOne(ctx, tx, setVerificationCodeSQL, code, expiresAt, now, id.String())
}

// LinkProviderTx attaches provider credentials to an existing account and
// forces the verified flag. The link is one way: any existing password
// keeps working alongside the provider.
func (a *users) LinkProviderTx(ctx context.Context, tx bun.IDB, id uuid.UUID, provider, providerUserID, avatarURL string, now time.Time) (*User, error) {
	return a.rawOne(ctx, tx, linkProviderSQL, provider, providerUserID, avatarURL, now, id.String())
}

func (a *users) rawOne(ctx context.Context, tx bun.IDB, sql string, args ...any) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, sql, args...)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound()
	}

	return res[0], nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
