package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// service holds the board, list, card and account operations. Every method
// takes the acting user's id explicitly and re-derives access from the board.
type service struct {
	store  Store
	blobs  BlobStore
	tokens *tokenSigner
	log    *slog.Logger
	now    func() time.Time
	newID  func() string
}

func newService(store Store, blobs BlobStore, tokens *tokenSigner, log *slog.Logger) *service {
	return &service{
		store:  store,
		blobs:  blobs,
		tokens: tokens,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// boardAccess loads a board and checks that userID holds at least level on it.
func (s *service) boardAccess(ctx context.Context, boardID, userID string, level accessLevel) (*Board, Access, error) {
	b, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Access{}, notFound("Board not found")
		}
		return nil, Access{}, fmt.Errorf("failed to load board: %w", err)
	}
	acc := authorize(b, userID)
	if !acc.allows(level) {
		return nil, acc, ErrForbidden
	}
	return b, acc, nil
}

// cardAccess loads a card and checks membership on the board it belongs to.
func (s *service) cardAccess(ctx context.Context, cardID, userID string) (*Card, error) {
	c, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("Card not found")
		}
		return nil, fmt.Errorf("failed to load card: %w", err)
	}
	if _, _, err := s.boardAccess(ctx, c.Board, userID, levelMember); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *service) loadList(ctx context.Context, listID, missing string) (*List, error) {
	l, err := s.store.GetList(ctx, listID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound(missing)
		}
		return nil, fmt.Errorf("failed to load list: %w", err)
	}
	return l, nil
}

func (s *service) activity(text, by string) Activity {
	return Activity{ID: s.newID(), Text: text, By: by, At: s.now()}
}
