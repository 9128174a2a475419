package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

func (s *service) CreateBoard(ctx context.Context, userID, title, description string) (*Board, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, invalidf("Title required")
	}
	now := s.now()
	// The owner is implicitly Admin and is not added to Members.
	b := &Board{
		ID:          s.newID(),
		Title:       title,
		Description: strings.TrimSpace(description),
		Owner:       userID,
		Members:     []Member{},
		Lists:       []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertBoard(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create board: %w", err)
	}
	return b, nil
}

func (s *service) BoardsForUser(ctx context.Context, userID string) ([]Board, error) {
	boards, err := s.store.BoardsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}
	return boards, nil
}

func (s *service) BoardDetail(ctx context.Context, boardID, userID string) (*BoardDetail, error) {
	b, _, err := s.boardAccess(ctx, boardID, userID, levelMember)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, b)
}

// detail expands owner, members, lists and cards of b, in board and list order.
func (s *service) detail(ctx context.Context, b *Board) (*BoardDetail, error) {
	userIDs := make([]string, 0, len(b.Members)+1)
	userIDs = append(userIDs, b.Owner)
	for _, m := range b.Members {
		userIDs = append(userIDs, m.User)
	}
	users, err := s.store.UsersByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load board users: %w", err)
	}
	byID := make(map[string]User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	summary := func(id string) UserSummary {
		if u, ok := byID[id]; ok {
			return u.Summary()
		}
		return UserSummary{ID: id}
	}

	lists, err := s.store.ListsByIDs(ctx, b.Lists)
	if err != nil {
		return nil, fmt.Errorf("failed to load lists: %w", err)
	}
	lists = orderByIDs(b.Lists, lists, func(l List) string { return l.ID })

	var cardIDs []string
	for _, l := range lists {
		cardIDs = append(cardIDs, l.Cards...)
	}
	cards, err := s.store.CardsByIDs(ctx, cardIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load cards: %w", err)
	}

	d := &BoardDetail{
		ID:          b.ID,
		Title:       b.Title,
		Description: b.Description,
		Owner:       summary(b.Owner),
		Members:     make([]MemberView, 0, len(b.Members)),
		Lists:       make([]ListView, 0, len(lists)),
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
	for _, m := range b.Members {
		d.Members = append(d.Members, MemberView{User: summary(m.User), Role: m.Role})
	}
	for _, l := range lists {
		d.Lists = append(d.Lists, ListView{
			List:  l,
			Cards: orderByIDs(l.Cards, cards, func(c Card) string { return c.ID }),
		})
	}
	return d, nil
}

func (s *service) UpdateBoard(ctx context.Context, boardID, userID string, title, description *string) (*BoardDetail, error) {
	b, _, err := s.boardAccess(ctx, boardID, userID, levelAdmin)
	if err != nil {
		return nil, err
	}
	if title != nil {
		t := strings.TrimSpace(*title)
		if t == "" {
			return nil, invalidf("Title cannot be empty")
		}
		b.Title = t
	}
	if description != nil {
		b.Description = strings.TrimSpace(*description)
	}
	b.UpdatedAt = s.now()
	if err := s.store.SaveBoard(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to save board: %w", err)
	}
	return s.detail(ctx, b)
}

// DeleteBoard removes the board's cards, then its lists, then the board.
// The three steps are not atomic; a failure part way leaves orphans.
func (s *service) DeleteBoard(ctx context.Context, boardID, userID string) error {
	if _, _, err := s.boardAccess(ctx, boardID, userID, levelOwner); err != nil {
		return err
	}
	if err := s.store.DeleteCardsByBoard(ctx, boardID); err != nil {
		return fmt.Errorf("failed to delete board cards: %w", err)
	}
	if err := s.store.DeleteListsByBoard(ctx, boardID); err != nil {
		return fmt.Errorf("failed to delete board lists: %w", err)
	}
	if err := s.store.DeleteBoard(ctx, boardID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound("Board not found")
		}
		return fmt.Errorf("failed to delete board: %w", err)
	}
	return nil
}

func (s *service) InviteMember(ctx context.Context, boardID, userID, targetID string, role Role) (*BoardDetail, error) {
	b, _, err := s.boardAccess(ctx, boardID, userID, levelAdmin)
	if err != nil {
		return nil, err
	}
	if targetID == "" {
		return nil, invalidf("user_id required")
	}
	if role == "" {
		role = RoleEditor
	}
	if !role.Valid() {
		return nil, invalidf("Invalid role")
	}
	if _, err := s.store.UserByID(ctx, targetID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("User not found")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if b.Owner == targetID || memberIndex(b, targetID) >= 0 {
		return nil, conflict("User already member")
	}
	b.Members = append(b.Members, Member{User: targetID, Role: role})
	b.UpdatedAt = s.now()
	if err := s.store.SaveBoard(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to save board: %w", err)
	}
	return s.detail(ctx, b)
}

// ChangeRole sets a member's role. Demoting the last Admin, or oneself, is allowed.
func (s *service) ChangeRole(ctx context.Context, boardID, userID, targetID string, role Role) (*BoardDetail, error) {
	b, _, err := s.boardAccess(ctx, boardID, userID, levelAdmin)
	if err != nil {
		return nil, err
	}
	if targetID == "" || role == "" {
		return nil, invalidf("user_id and role required")
	}
	if !role.Valid() {
		return nil, invalidf("Invalid role")
	}
	i := memberIndex(b, targetID)
	if i < 0 {
		return nil, notFound("Member not found")
	}
	b.Members[i].Role = role
	b.UpdatedAt = s.now()
	if err := s.store.SaveBoard(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to save board: %w", err)
	}
	return s.detail(ctx, b)
}
