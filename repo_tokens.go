package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccessTokens persists issued bearer tokens, keyed by their stored hash.
type AccessTokens interface {
	repository.Repository[*AccessToken]

	GetByHash(ctx context.Context, hash string) (*AccessToken, error)
	GetByHashTx(ctx context.Context, tx bun.IDB, hash string) (*AccessToken, error)
	Touch(ctx context.Context, id uuid.UUID, usedAt time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type accessTokens struct {
	repository.Repository[*AccessToken]
	db *bun.DB
}

var _ AccessTokens = (*accessTokens)(nil)

// NewAccessTokensRepository builds the AccessTokens repository.
func NewAccessTokensRepository(db *bun.DB) AccessTokens {
	repo := repository.NewRepository[*AccessToken](db, repository.ModelHandlers[*AccessToken]{
		NewRecord: func() *AccessToken { return &AccessToken{} },
		GetID: func(t *AccessToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *AccessToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
	})

	return &accessTokens{
		Repository: repo,
		db:         db,
	}
}

func (a *accessTokens) GetByHash(ctx context.Context, hash string) (*AccessToken, error) {
	return a.GetByHashTx(ctx, a.db, hash)
}

func (a *accessTokens) GetByHashTx(ctx context.Context, tx bun.IDB, hash string) (*AccessToken, error) {
	record := &AccessToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", hash).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (a *accessTokens) Touch(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	_, err := a.db.NewUpdate().
		Model((*AccessToken)(nil)).
		Set("last_used_at = ?", usedAt).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// DeleteExpired prunes tokens past their expiry. Housekeeping only; expiry
// is always re-checked at authentication time.
func (a *accessTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := a.db.NewDelete().
		Model((*AccessToken)(nil)).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return n, nil
}
