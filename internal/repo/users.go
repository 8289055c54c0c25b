package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/abdusco/linkdash/internal"
	"github.com/abdusco/linkdash/internal/db"
	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const usersTable = "users"

type userRow struct {
	ID           string `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
	CreatedAt    Date   `db:"created_at"`
}

type UsersRepo struct {
	db *db.DB
}

func NewUsersRepo(d *db.DB) *UsersRepo {
	return &UsersRepo{db: d}
}

// Create stores a new principal. The username must not be taken.
func (r *UsersRepo) Create(ctx context.Context, username, passwordHash string) (*internal.User, error) {
	executor := r.db.Goqu()

	taken, err := executor.From(usersTable).Where(goqu.Ex{"username": username}).CountContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if taken > 0 {
		return nil, internal.ErrUserExists
	}

	row := userRow{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    NewDate(time.Now().Truncate(time.Microsecond)),
	}

	_, err = executor.Insert(usersTable).Rows(goqu.Record{
		"id":            row.ID,
		"username":      row.Username,
		"password_hash": row.PasswordHash,
		"created_at":    row.CreatedAt,
	}).Executor().ExecContext(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, internal.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	log.Info().Str("user_id", row.ID).Str("username", username).Msg("user created")
	return row.toDomain(), nil
}

func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (*internal.User, error) {
	return r.getOne(ctx, goqu.Ex{"username": username})
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (*internal.User, error) {
	return r.getOne(ctx, goqu.Ex{"id": id})
}

func (r *UsersRepo) getOne(ctx context.Context, where goqu.Ex) (*internal.User, error) {
	var row userRow
	found, err := r.db.Goqu().From(usersTable).
		Select("id", "username", "password_hash", "created_at").
		Where(where).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	if !found {
		return nil, internal.ErrUserNotFound
	}
	return row.toDomain(), nil
}

func (r *userRow) toDomain() *internal.User {
	return &internal.User{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.Time(),
	}
}
