package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 6

type authResult struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token"`
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func (s *service) Register(ctx context.Context, name, email, password string) (*authResult, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return nil, invalidf("Missing fields")
	}
	if len(password) < minPasswordLen {
		return nil, invalidf("Password must be at least %d characters", minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	u := &User{ID: s.newID(), Name: name, Email: email, PasswordHash: string(hash), CreatedAt: s.now()}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, conflict("User already exists")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return s.authResult(u)
}

func (s *service) Login(ctx context.Context, email, password string) (*authResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, invalidf("Missing fields")
	}
	u, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: Invalid credentials", ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, fmt.Errorf("%w: Invalid credentials", ErrUnauthorized)
	}
	return s.authResult(u)
}

func (s *service) authResult(u *User) (*authResult, error) {
	token, err := s.tokens.Issue(u)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &authResult{ID: u.ID, Name: u.Name, Email: u.Email, Token: token}, nil
}

func (s *service) Me(ctx context.Context, userID string) (*User, error) {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("User not found")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

func (s *service) RenameUser(ctx context.Context, userID, name string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidf("name required")
	}
	if err := s.store.UpdateUserName(ctx, userID, name); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("User not found")
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return s.Me(ctx, userID)
}

const userSearchLimit = 20

func (s *service) FindUsers(ctx context.Context, q string) ([]UserSummary, error) {
	users, err := s.store.SearchUsers(ctx, strings.TrimSpace(q), userSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return out, nil
}
