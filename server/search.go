package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

func firstParam(v url.Values, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(v.Get(k)); s != "" {
			return s
		}
	}
	return ""
}

// endOfDay moves t to the last millisecond of its calendar day.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// parseCardQuery reads the search query string. due_to covers its whole day.
func parseCardQuery(v url.Values) (CardQuery, error) {
	q := CardQuery{
		Text:   firstParam(v, "q"),
		Status: firstParam(v, "status"),
		Board:  firstParam(v, "board"),
		Labels: splitList(v.Get("labels")),
	}
	if q.Board != "" {
		_, err := uuid.Parse(q.Board)
		q.BoardIsID = err == nil
	}
	if s := firstParam(v, "due_from", "dueFrom"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return q, invalidf("Invalid due_from")
		}
		q.DueFrom = &t
	}
	if s := firstParam(v, "due_to", "dueTo"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return q, invalidf("Invalid due_to")
		}
		t = endOfDay(t)
		q.DueTo = &t
	}
	return q, nil
}

// SearchCards runs q over the boards userID can see.
func (s *service) SearchCards(ctx context.Context, userID string, q CardQuery) ([]CardHit, error) {
	boards, err := s.store.BoardsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}
	q.BoardIDs = make([]string, 0, len(boards))
	for _, b := range boards {
		q.BoardIDs = append(q.BoardIDs, b.ID)
	}
	if len(q.BoardIDs) == 0 {
		return []CardHit{}, nil
	}
	q.Limit = searchLimit
	hits, err := s.store.SearchCards(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to search cards: %w", err)
	}
	return hits, nil
}
