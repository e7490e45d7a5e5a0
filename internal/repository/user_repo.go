package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"playas/internal/db"
)

type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*db.User, error)
	GetByID(ctx context.Context, id int) (*db.User, error)
	Create(ctx context.Context, u *db.User, password string) error
	CreateDriverAccount(ctx context.Context, u *db.User, password string, d *db.Driver) error
	List(ctx context.Context, role string) ([]db.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(conn *sql.DB) UserRepository {
	return &userRepository{db: conn}
}

const userColumns = `id, email, password_hash, full_name, role, created_at`

func scanUser(s scanner, u *db.User) error {
	return s.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.CreatedAt)
}

// GetByEmail returns nil, nil when no user has that email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*db.User, error) {
	var u db.User
	err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1", strings.ToLower(email)), &u)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) GetByID(ctx context.Context, id int) (*db.User, error) {
	var u db.User
	err := scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id), &u)
	if err != nil {
		return nil, notFound(err, "users.get", fmt.Sprintf("user %d", id))
	}
	return &u, nil
}

func insertUser(ctx context.Context, q queryRower, u *db.User, password string) error {
	// Hashear la contraseña usando bcrypt
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Email = strings.ToLower(u.Email)
	u.PasswordHash = string(hashed)
	err = q.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash, full_name, role) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		u.Email, u.PasswordHash, u.FullName, u.Role,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return writeErr(err, "users.create", "email already registered")
	}
	return nil
}

func (r *userRepository) Create(ctx context.Context, u *db.User, password string) error {
	return insertUser(ctx, r.db, u, password)
}

// CreateDriverAccount creates the login and the driver profile together.
func (r *userRepository) CreateDriverAccount(ctx context.Context, u *db.User, password string, d *db.Driver) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := insertUser(ctx, tx, u, password); err != nil {
			return err
		}
		d.UserID = &u.ID
		if d.Email == "" {
			d.Email = u.Email
		}
		return insertDriver(ctx, tx, d)
	})
}

func (r *userRepository) List(ctx context.Context, role string) ([]db.User, error) {
	query := "SELECT " + userColumns + " FROM users"
	args := []any{}
	if role != "" {
		query += " WHERE role = $1"
		args = append(args, role)
	}
	query += " ORDER BY full_name, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("users.list: %w", err)
	}
	defer rows.Close()

	var users []db.User
	for rows.Next() {
		var u db.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("users.list scan: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
