package main

import (
	"context"
	"time"
)

// Store is the persistence contract shared by the Mongo and Postgres backends.
// Saves replace the whole document; concurrent saves of one document are last write wins.
type Store interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	CreateUser(ctx context.Context, u *User) error
	UserByID(ctx context.Context, id string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UsersByIDs(ctx context.Context, ids []string) ([]User, error)
	SearchUsers(ctx context.Context, q string, limit int) ([]User, error)
	UpdateUserName(ctx context.Context, id, name string) error

	InsertBoard(ctx context.Context, b *Board) error
	GetBoard(ctx context.Context, id string) (*Board, error)
	SaveBoard(ctx context.Context, b *Board) error
	DeleteBoard(ctx context.Context, id string) error
	BoardsForUser(ctx context.Context, userID string) ([]Board, error)
	PullListFromBoard(ctx context.Context, boardID, listID string) error

	InsertList(ctx context.Context, l *List) error
	GetList(ctx context.Context, id string) (*List, error)
	SaveList(ctx context.Context, l *List) error
	ListsByIDs(ctx context.Context, ids []string) ([]List, error)
	DeleteList(ctx context.Context, id string) error
	DeleteListsByBoard(ctx context.Context, boardID string) error
	PullCardFromList(ctx context.Context, listID, cardID string) error

	InsertCard(ctx context.Context, c *Card) error
	GetCard(ctx context.Context, id string) (*Card, error)
	SaveCard(ctx context.Context, c *Card) error
	CardsByIDs(ctx context.Context, ids []string) ([]Card, error)
	DeleteCard(ctx context.Context, id string) error
	DeleteCardsByBoard(ctx context.Context, boardID string) error
	DeleteCardsByList(ctx context.Context, listID string) error

	SearchCards(ctx context.Context, q CardQuery) ([]CardHit, error)
}

const searchLimit = 500

// CardQuery is a parsed card search. Empty fields do not filter.
type CardQuery struct {
	BoardIDs []string // boards the caller may see; nil means unrestricted
	Labels   []string
	Text     string
	// Board is either a board id or a title fragment, see BoardIsID.
	Board     string
	BoardIsID bool
	Status    string
	DueFrom   *time.Time
	DueTo     *time.Time
	Limit     int
}

func (q CardQuery) limit() int {
	if q.Limit <= 0 || q.Limit > searchLimit {
		return searchLimit
	}
	return q.Limit
}

// orderByIDs returns items arranged as ids lists them, skipping ids with no item.
func orderByIDs[T any](ids []string, items []T, key func(T) string) []T {
	byID := make(map[string]T, len(items))
	for _, it := range items {
		byID[key(it)] = it
	}
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			out = append(out, it)
		}
	}
	return out
}
