package service

import (
	"context"
	"net/mail"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"playas/internal/auth"
	"playas/internal/db"
	apperrors "playas/internal/errors"
	"playas/internal/repository"
)

const minPasswordLength = 8

type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Document string
	Phone    string
}

type AuthService struct {
	users  repository.UserRepository
	issuer *auth.Issuer
}

func NewAuthService(users repository.UserRepository, issuer *auth.Issuer) *AuthService {
	return &AuthService{users: users, issuer: issuer}
}

func validCredentials(op, email, password string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return apperrors.Invalid(op, "invalid email")
	}
	if len(password) < minPasswordLength {
		return apperrors.Invalid(op, "password must have at least 8 characters")
	}
	return nil
}

// Register creates a driver account and returns a token for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*db.User, string, error) {
	if err := validCredentials("auth.register", in.Email, in.Password); err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(in.FullName) == "" {
		return nil, "", apperrors.Invalid("auth.register", "full name is required")
	}
	u := &db.User{Email: in.Email, FullName: in.FullName, Role: db.RoleDriver}
	d := &db.Driver{FullName: in.FullName, Document: in.Document, Phone: in.Phone}
	if err := s.users.CreateDriverAccount(ctx, u, in.Password, d); err != nil {
		return nil, "", err
	}
	token, err := s.issuer.Issue(u)
	if err != nil {
		return nil, "", err
	}
	log.WithFields(log.Fields{"user_id": u.ID, "driver_id": d.ID}).Info("driver registered")
	return u, token, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (string, *db.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if u == nil {
		return "", nil, &apperrors.OpError{Op: "auth.login", Kind: apperrors.KindUnauthorized, Msg: "invalid credentials"}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, &apperrors.OpError{Op: "auth.login", Kind: apperrors.KindUnauthorized, Msg: "invalid credentials"}
	}
	token, err := s.issuer.Issue(u)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// CreateAdmin is used by the CLI only.
func (s *AuthService) CreateAdmin(ctx context.Context, email, password, name string) (*db.User, error) {
	if err := validCredentials("auth.create_admin", email, password); err != nil {
		return nil, err
	}
	u := &db.User{Email: email, FullName: name, Role: db.RoleAdmin}
	if err := s.users.Create(ctx, u, password); err != nil {
		return nil, err
	}
	return u, nil
}

// CreateStaff lets an admin create owners and attendants.
func (s *AuthService) CreateStaff(ctx context.Context, p auth.Principal, email, password, name, role string) (*db.User, error) {
	if p.Role != db.RoleAdmin {
		return nil, apperrors.Forbidden("auth.create_staff", "admin only")
	}
	if role != db.RoleOwner && role != db.RoleAttendant {
		return nil, apperrors.Invalid("auth.create_staff", "role must be owner or attendant")
	}
	if err := validCredentials("auth.create_staff", email, password); err != nil {
		return nil, err
	}
	u := &db.User{Email: email, FullName: name, Role: role}
	if err := s.users.Create(ctx, u, password); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *AuthService) ListUsers(ctx context.Context, p auth.Principal, role string) ([]db.User, error) {
	if p.Role != db.RoleAdmin {
		return nil, apperrors.Forbidden("auth.list_users", "admin only")
	}
	return s.users.List(ctx, role)
}

func (s *AuthService) Me(ctx context.Context, p auth.Principal) (*db.User, error) {
	return s.users.GetByID(ctx, p.UserID)
}
