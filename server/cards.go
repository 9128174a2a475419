package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const dateOnly = "2006-01-02"

// parseDate accepts RFC 3339 timestamps and plain dates (midnight UTC).
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// dateField decodes an optional JSON date where null clears the value.
type dateField struct {
	Set  bool
	Time *time.Time
}

func (d *dateField) UnmarshalJSON(b []byte) error {
	d.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		d.Time = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		d.Time = nil
		return nil
	}
	t, err := parseDate(s)
	if err != nil {
		return err
	}
	d.Time = &t
	return nil
}

type CardInput struct {
	ListID      string    `json:"list_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueDate     dateField `json:"due_date"`
	Labels      []string  `json:"labels"`
	Status      string    `json:"status"`
}

type CardPatch struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	DueDate     dateField `json:"due_date"`
	Labels      *[]string `json:"labels"`
	Status      *string   `json:"status"`
	Completed   *bool     `json:"completed"`
}

func cleanLabels(in []string) []string {
	out := make([]string, 0, len(in))
	for _, l := range in {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func (s *service) CreateCard(ctx context.Context, userID string, in CardInput) (*Card, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" || in.ListID == "" {
		return nil, invalidf("Missing fields")
	}
	l, err := s.loadList(ctx, in.ListID, "List not found")
	if err != nil {
		return nil, err
	}
	if _, _, err := s.boardAccess(ctx, l.Board, userID, levelMember); err != nil {
		return nil, err
	}
	now := s.now()
	c := &Card{
		ID:          s.newID(),
		Title:       title,
		Description: in.Description,
		List:        l.ID,
		Board:       l.Board,
		Position:    len(l.Cards),
		DueDate:     in.DueDate.Time,
		Labels:      cleanLabels(in.Labels),
		Status:      strings.TrimSpace(in.Status),
		Attachments: []Attachment{},
		Comments:    []Comment{},
		Activity:    []Activity{s.activity("Card created: "+title, userID)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertCard(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}
	l.Cards = append(l.Cards, c.ID)
	l.UpdatedAt = now
	if err := s.store.SaveList(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to save list: %w", err)
	}
	return c, nil
}

func (s *service) GetCard(ctx context.Context, userID, cardID string) (*Card, error) {
	return s.cardAccess(ctx, cardID, userID)
}

func (s *service) UpdateCard(ctx context.Context, userID, cardID string, p CardPatch) (*Card, error) {
	c, err := s.cardAccess(ctx, cardID, userID)
	if err != nil {
		return nil, err
	}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return nil, invalidf("Title cannot be empty")
		}
		c.Title = t
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.DueDate.Set {
		c.DueDate = p.DueDate.Time
	}
	if p.Labels != nil {
		c.Labels = cleanLabels(*p.Labels)
	}
	if p.Status != nil {
		c.Status = strings.TrimSpace(*p.Status)
	}
	if p.Completed != nil {
		c.Completed = *p.Completed
	}
	c.Activity = append(c.Activity, s.activity("Card updated", userID))
	c.UpdatedAt = s.now()
	if err := s.store.SaveCard(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save card: %w", err)
	}
	return c, nil
}

type cardOrigin struct {
	ListID  string
	BoardID string
}

// MoveCard unlinks the card from its list by id and inserts it into the
// destination at position (negative or too large appends). Moving to a list on
// another board requires membership there too, and the card follows the list's board.
// It also returns where the card was before the move.
func (s *service) MoveCard(ctx context.Context, userID, cardID, toListID string, position int) (*Card, cardOrigin, error) {
	if cardID == "" || toListID == "" {
		return nil, cardOrigin{}, invalidf("card_id and to_list_id are required")
	}
	c, err := s.cardAccess(ctx, cardID, userID)
	if err != nil {
		return nil, cardOrigin{}, err
	}
	to, err := s.loadList(ctx, toListID, "Destination list not found")
	if err != nil {
		return nil, cardOrigin{}, err
	}
	if to.Board != c.Board {
		if _, _, err := s.boardAccess(ctx, to.Board, userID, levelMember); err != nil {
			return nil, cardOrigin{}, err
		}
	}

	now := s.now()
	origin := cardOrigin{ListID: c.List, BoardID: c.Board}
	fromID := c.List
	if fromID != to.ID {
		from, err := s.store.GetList(ctx, fromID)
		switch {
		case errors.Is(err, ErrNotFound):
			// already gone; nothing to unlink
		case err != nil:
			return nil, cardOrigin{}, fmt.Errorf("failed to load source list: %w", err)
		default:
			from.Cards = removeID(from.Cards, c.ID)
			from.UpdatedAt = now
			if err := s.store.SaveList(ctx, from); err != nil {
				return nil, cardOrigin{}, fmt.Errorf("failed to save source list: %w", err)
			}
		}
	}

	var idx int
	to.Cards, idx = insertID(removeID(to.Cards, c.ID), c.ID, position)
	to.UpdatedAt = now
	if err := s.store.SaveList(ctx, to); err != nil {
		return nil, cardOrigin{}, fmt.Errorf("failed to save destination list: %w", err)
	}

	c.List = to.ID
	c.Board = to.Board
	c.Position = idx
	c.Activity = append(c.Activity, s.activity("Moved to list "+to.Title, userID))
	c.UpdatedAt = now
	if err := s.store.SaveCard(ctx, c); err != nil {
		return nil, cardOrigin{}, fmt.Errorf("failed to save card: %w", err)
	}
	return c, origin, nil
}

// DeleteCard unlinks the card from its list before deleting it, then drops its
// attachment blobs best effort.
func (s *service) DeleteCard(ctx context.Context, userID, cardID string) (*Card, error) {
	c, err := s.cardAccess(ctx, cardID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.PullCardFromList(ctx, c.List, c.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to unlink card: %w", err)
	}
	if err := s.store.DeleteCard(ctx, c.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("Card not found")
		}
		return nil, fmt.Errorf("failed to delete card: %w", err)
	}
	if len(c.Attachments) > 0 {
		if err := s.blobs.DeletePrefix(ctx, cardBlobDir(c.ID)); err != nil {
			s.log.Warn("delete card blobs", "card", c.ID, "err", err)
		}
	}
	return c, nil
}

func (s *service) AddComment(ctx context.Context, userID, cardID, text string) (*Card, error) {
	if strings.TrimSpace(text) == "" {
		return nil, invalidf("Comment text required")
	}
	c, err := s.cardAccess(ctx, cardID, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	c.Comments = append(c.Comments, Comment{ID: s.newID(), Author: userID, Text: text, CreatedAt: now})
	c.Activity = append(c.Activity, s.activity("Comment added", userID))
	c.UpdatedAt = now
	if err := s.store.SaveCard(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save card: %w", err)
	}
	return c, nil
}
