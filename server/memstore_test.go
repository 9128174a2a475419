package main

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
)

// memStore is an in-process Store for service and handler tests. It hands out
// copies so callers cannot mutate stored state without a Save.
type memStore struct {
	mu     sync.Mutex
	users  map[string]User
	boards map[string]Board
	lists  map[string]List
	cards  map[string]Card
	seq    []string // insertion order across all kinds
}

func newMemStore() *memStore {
	return &memStore{
		users:  map[string]User{},
		boards: map[string]Board{},
		lists:  map[string]List{},
		cards:  map[string]Card{},
	}
}

func cloneBoard(b Board) Board {
	b.Members = slices.Clone(b.Members)
	b.Lists = slices.Clone(b.Lists)
	b.normalize()
	return b
}

func cloneList(l List) List {
	l.Cards = slices.Clone(l.Cards)
	l.normalize()
	return l
}

func cloneCard(c Card) Card {
	c.Labels = slices.Clone(c.Labels)
	c.Attachments = slices.Clone(c.Attachments)
	c.Comments = slices.Clone(c.Comments)
	c.Activity = slices.Clone(c.Activity)
	if c.DueDate != nil {
		t := *c.DueDate
		c.DueDate = &t
	}
	c.normalize()
	return c
}

func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Ping(context.Context) error    { return nil }
func (s *memStore) Close(context.Context) error   { return nil }

func (s *memStore) CreateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.users {
		if other.Email == u.Email {
			return ErrConflict
		}
	}
	s.users[u.ID] = *u
	s.seq = append(s.seq, u.ID)
	return nil
}

func (s *memStore) UserByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *memStore) UserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) UsersByIDs(_ context.Context, ids []string) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []User{}
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memStore) SearchUsers(_ context.Context, q string, limit int) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q = strings.ToLower(q)
	out := []User{}
	for _, id := range s.seq {
		u, ok := s.users[id]
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(strings.ToLower(u.Email), q) {
			out = append(out, u)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) UpdateUserName(_ context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Name = name
	s.users[id] = u
	return nil
}

func (s *memStore) InsertBoard(_ context.Context, b *Board) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[b.ID] = cloneBoard(*b)
	s.seq = append(s.seq, b.ID)
	return nil
}

func (s *memStore) GetBoard(_ context.Context, id string) (*Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[id]
	if !ok {
		return nil, ErrNotFound
	}
	b = cloneBoard(b)
	return &b, nil
}

func (s *memStore) SaveBoard(_ context.Context, b *Board) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.boards[b.ID]; !ok {
		return ErrNotFound
	}
	s.boards[b.ID] = cloneBoard(*b)
	return nil
}

func (s *memStore) DeleteBoard(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.boards[id]; !ok {
		return ErrNotFound
	}
	delete(s.boards, id)
	return nil
}

func (s *memStore) BoardsForUser(_ context.Context, userID string) ([]Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Board{}
	for _, id := range s.seq {
		b, ok := s.boards[id]
		if !ok {
			continue
		}
		if authorize(&b, userID).Member() {
			out = append(out, cloneBoard(b))
		}
	}
	return out, nil
}

func (s *memStore) PullListFromBoard(_ context.Context, boardID, listID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[boardID]
	if !ok {
		return ErrNotFound
	}
	b.Lists = removeID(b.Lists, listID)
	s.boards[boardID] = b
	return nil
}

func (s *memStore) InsertList(_ context.Context, l *List) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[l.ID] = cloneList(*l)
	return nil
}

func (s *memStore) GetList(_ context.Context, id string) (*List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[id]
	if !ok {
		return nil, ErrNotFound
	}
	l = cloneList(l)
	return &l, nil
}

func (s *memStore) SaveList(_ context.Context, l *List) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lists[l.ID]; !ok {
		return ErrNotFound
	}
	s.lists[l.ID] = cloneList(*l)
	return nil
}

func (s *memStore) ListsByIDs(_ context.Context, ids []string) ([]List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []List{}
	for _, id := range ids {
		if l, ok := s.lists[id]; ok {
			out = append(out, cloneList(l))
		}
	}
	return out, nil
}

func (s *memStore) DeleteList(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lists[id]; !ok {
		return ErrNotFound
	}
	delete(s.lists, id)
	return nil
}

func (s *memStore) DeleteListsByBoard(_ context.Context, boardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, l := range s.lists {
		if l.Board == boardID {
			delete(s.lists, id)
		}
	}
	return nil
}

func (s *memStore) PullCardFromList(_ context.Context, listID, cardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[listID]
	if !ok {
		return ErrNotFound
	}
	l.Cards = removeID(l.Cards, cardID)
	s.lists[listID] = l
	return nil
}

func (s *memStore) InsertCard(_ context.Context, c *Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[c.ID] = cloneCard(*c)
	s.seq = append(s.seq, c.ID)
	return nil
}

func (s *memStore) GetCard(_ context.Context, id string) (*Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return nil, ErrNotFound
	}
	c = cloneCard(c)
	return &c, nil
}

func (s *memStore) SaveCard(_ context.Context, c *Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[c.ID]; !ok {
		return ErrNotFound
	}
	s.cards[c.ID] = cloneCard(*c)
	return nil
}

func (s *memStore) CardsByIDs(_ context.Context, ids []string) ([]Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Card{}
	for _, id := range ids {
		if c, ok := s.cards[id]; ok {
			out = append(out, cloneCard(c))
		}
	}
	return out, nil
}

func (s *memStore) DeleteCard(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[id]; !ok {
		return ErrNotFound
	}
	delete(s.cards, id)
	return nil
}

func (s *memStore) DeleteCardsByBoard(_ context.Context, boardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.cards {
		if c.Board == boardID {
			delete(s.cards, id)
		}
	}
	return nil
}

func (s *memStore) DeleteCardsByList(_ context.Context, listID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.cards {
		if c.List == listID {
			delete(s.cards, id)
		}
	}
	return nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (s *memStore) SearchCards(_ context.Context, q CardQuery) ([]CardHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []CardHit{}
	for _, id := range s.seq {
		c, ok := s.cards[id]
		if !ok {
			continue
		}
		b := s.boards[c.Board]
		l := s.lists[c.List]
		switch {
		case q.BoardIDs != nil && !slices.Contains(q.BoardIDs, c.Board):
			continue
		case q.Board != "" && q.BoardIsID && c.Board != q.Board:
			continue
		case q.Board != "" && !q.BoardIsID && !containsFold(b.Title, q.Board):
			continue
		case len(q.Labels) > 0 && !slices.ContainsFunc(c.Labels, func(l string) bool { return slices.Contains(q.Labels, l) }):
			continue
		case q.Status != "" && c.Status != q.Status:
			continue
		case q.DueFrom != nil && (c.DueDate == nil || c.DueDate.Before(*q.DueFrom)):
			continue
		case q.DueTo != nil && (c.DueDate == nil || c.DueDate.After(*q.DueTo)):
			continue
		case q.Text != "" && !containsFold(c.Title, q.Text) && !containsFold(c.Description, q.Text) &&
			!containsFold(b.Title, q.Text) && !containsFold(l.Title, q.Text):
			continue
		}
		out = append(out, CardHit{Card: cloneCard(c), BoardTitle: b.Title, ListTitle: l.Title})
		if len(out) == q.limit() {
			break
		}
	}
	return out, nil
}

// boardIDs returns stored board ids in sorted order.
func (s *memStore) boardIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.boards))
	for id := range s.boards {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var _ Store = (*memStore)(nil)
