package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

func (s *service) CreateList(ctx context.Context, userID, boardID, title string) (*List, error) {
	title = strings.TrimSpace(title)
	if title == "" || boardID == "" {
		return nil, invalidf("Missing fields")
	}
	b, _, err := s.boardAccess(ctx, boardID, userID, levelMember)
	if err != nil {
		return nil, err
	}
	now := s.now()
	l := &List{
		ID:        s.newID(),
		Title:     title,
		Board:     b.ID,
		Position:  len(b.Lists),
		Cards:     []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertList(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to create list: %w", err)
	}
	b.Lists = append(b.Lists, l.ID)
	b.UpdatedAt = now
	if err := s.store.SaveBoard(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to save board: %w", err)
	}
	return l, nil
}

// RenameList sets a new title; a blank title keeps the current one.
func (s *service) RenameList(ctx context.Context, userID, listID, title string) (*List, error) {
	l, err := s.loadList(ctx, listID, "List not found")
	if err != nil {
		return nil, err
	}
	if _, _, err := s.boardAccess(ctx, l.Board, userID, levelMember); err != nil {
		return nil, err
	}
	if t := strings.TrimSpace(title); t != "" {
		l.Title = t
	}
	l.UpdatedAt = s.now()
	if err := s.store.SaveList(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to save list: %w", err)
	}
	return l, nil
}

// DeleteList removes the list's cards, unlinks it from its board, then deletes it.
func (s *service) DeleteList(ctx context.Context, userID, listID string) (*List, error) {
	l, err := s.loadList(ctx, listID, "List not found")
	if err != nil {
		return nil, err
	}
	if _, _, err := s.boardAccess(ctx, l.Board, userID, levelMember); err != nil {
		return nil, err
	}
	if err := s.store.DeleteCardsByList(ctx, l.ID); err != nil {
		return nil, fmt.Errorf("failed to delete list cards: %w", err)
	}
	if err := s.store.PullListFromBoard(ctx, l.Board, l.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to unlink list: %w", err)
	}
	if err := s.store.DeleteList(ctx, l.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("List not found")
		}
		return nil, fmt.Errorf("failed to delete list: %w", err)
	}
	return l, nil
}

func (s *service) ReorderLists(ctx context.Context, userID, boardID string, order []string) (*BoardDetail, error) {
	if boardID == "" || order == nil {
		return nil, invalidf("board_id and order array are required")
	}
	b, _, err := s.boardAccess(ctx, boardID, userID, levelMember)
	if err != nil {
		return nil, err
	}
	b.Lists = reorderIDs(b.Lists, order)
	b.UpdatedAt = s.now()
	if err := s.store.SaveBoard(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to save board: %w", err)
	}
	return s.detail(ctx, b)
}
