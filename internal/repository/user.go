package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tiendafacil/pedidos-api/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByRUT(ctx context.Context, rut string) (*model.User, error)
	UpdateProfile(ctx context.Context, user *model.User) error
}

type pgUserRepo struct{ pool *pgxpool.Pool }

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &pgUserRepo{pool: pool}
}

func (r *pgUserRepo) Create(ctx context.Context, user *model.User) error {
	user.ID = uuid.New()
	query := `INSERT INTO users (id, name, rut, email, password_hash, address, phone, role, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
			  RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		user.ID, user.Name, user.RUT, user.Email, user.Password, user.Address, user.Phone, user.Role,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *pgUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getBy(ctx, "id = $1", id)
}

func (r *pgUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getBy(ctx, "email = $1", email)
}

func (r *pgUserRepo) GetByRUT(ctx context.Context, rut string) (*model.User, error) {
	return r.getBy(ctx, "rut = $1", rut)
}

func (r *pgUserRepo) getBy(ctx context.Context, where string, arg any) (*model.User, error) {
	query := `SELECT id, name, rut, email, password_hash, address, phone, role, created_at, updated_at
			  FROM users WHERE ` + where
	user := &model.User{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Name, &user.RUT, &user.Email, &user.Password,
		&user.Address, &user.Phone, &user.Role, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// UpdateProfile writes the contact fields only. Email, RUT and role are
// immutable after registration.
func (r *pgUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	query := `UPDATE users SET name = $2, address = $3, phone = $4, updated_at = NOW()
			  WHERE id = $1 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query, user.ID, user.Name, user.Address, user.Phone).Scan(&user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}
