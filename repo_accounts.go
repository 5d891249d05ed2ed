package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

const pgUniqueViolation = "23505"

// mutableColumns are written on every Save. They are set explicitly so zero
// values (a cleared counter, an unlocked flag) reach the row.
var mutableColumns = []string{
	"username",
	"email",
	"first_name",
	"last_name",
	"password_hash",
	"roles",
	"active",
	"enabled",
	"locked",
	"failed_login_attempts",
	"last_login_at",
	"updated_at",
}

// Accounts is the bun repository for Account records.
type Accounts interface {
	repository.Repository[*Account]
	AccountStore
}

type accounts struct {
	repository.Repository[*Account]
	db bun.IDB
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

// NewAccountsRepository returns a bun backed AccountStore.
func NewAccountsRepository(db bun.IDB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return a.findBy(ctx, "username", username)
}

func (a *accounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return a.findBy(ctx, "email", strings.ToLower(email))
}

func (a *accounts) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	record, err := a.Repository.GetByID(ctx, id.String())
	if err != nil {
		return nil, accountLookupError(err, "id")
	}
	return record, nil
}

func (a *accounts) findBy(ctx context.Context, column, value string) (*Account, error) {
	record, err := a.Repository.GetTx(ctx, a.db, repository.SelectBy(column, "=", value))
	if err != nil {
		return nil, accountLookupError(err, column)
	}
	return record, nil
}

func (a *accounts) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Account, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

// GetByIdentifierTx resolves identifier as an id, an email or a username,
// in that order.
func (a *accounts) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*Account, error) {
	for _, opt := range resolveAccountIdentifier(identifier) {
		where := append([]repository.SelectCriteria{repository.SelectBy(opt.column, "=", opt.value)}, criteria...)
		record, err := a.Repository.GetTx(ctx, tx, where...)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}
		return record, nil
	}
	return nil, repository.ErrRecordNotFound
}

func (a *accounts) Create(ctx context.Context, account *Account) (*Account, error) {
	return a.CreateTx(ctx, a.db, account)
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	account.Email = strings.ToLower(account.Email)

	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = account.CreatedAt
	}

	record, err := a.Repository.CreateTx(ctx, tx, account)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "account already exists").
				WithCode(goerrors.CodeConflict)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create account")
	}
	return record, nil
}

func (a *accounts) Save(ctx context.Context, account *Account) error {
	return a.SaveTx(ctx, a.db, account)
}

// SaveTx writes every mutable column of account, zero values included.
func (a *accounts) SaveTx(ctx context.Context, tx bun.IDB, account *Account) error {
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = time.Now()
	}

	_, err := a.Repository.UpdateTx(ctx, tx, account,
		setModelColumns(mutableColumns...),
		repository.UpdateByID(account.ID.String()),
	)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrAccountNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save account")
	}
	return nil
}

// setModelColumns sets each column from the matching model field, so the
// field's own appender formats the value.
func setModelColumns(columns ...string) repository.UpdateCriteria {
	return repository.UpdateRawProcessor(func(q *bun.UpdateQuery) *bun.UpdateQuery {
		for _, column := range columns {
			q = q.Set("? = ?"+column, bun.Ident(column))
		}
		return q
	})
}

type identifierOption struct {
	column string
	value  string
}

func resolveAccountIdentifier(identifier string) []identifierOption {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil
	}

	if _, err := uuid.Parse(identifier); err == nil {
		return []identifierOption{{column: "id", value: identifier}}
	}

	if strings.Contains(identifier, "@") {
		return []identifierOption{
			{column: "email", value: strings.ToLower(identifier)},
			{column: "username", value: identifier},
		}
	}

	return []identifierOption{{column: "username", value: identifier}}
}

func accountLookupError(err error, column string) error {
	if repository.IsRecordNotFound(err) {
		return ErrAccountNotFound
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to query account").
		WithMetadata(map[string]any{"column": column})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	// sqlite drivers only expose the message
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
