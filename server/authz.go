package main

// Access is what a user may do on one board, derived fresh on every request.
type Access struct {
	IsOwner bool
	Role    Role // empty when the user is not in members
}

func (a Access) Member() bool { return a.IsOwner || a.Role != "" }
func (a Access) Admin() bool  { return a.IsOwner || a.Role == RoleAdmin }
func (a Access) Owner() bool  { return a.IsOwner }

type accessLevel int

const (
	levelMember accessLevel = iota
	levelAdmin
	levelOwner
)

func (a Access) allows(level accessLevel) bool {
	switch level {
	case levelOwner:
		return a.Owner()
	case levelAdmin:
		return a.Admin()
	default:
		return a.Member()
	}
}

func authorize(b *Board, userID string) Access {
	if b == nil || userID == "" {
		return Access{}
	}
	acc := Access{IsOwner: b.Owner == userID}
	for _, m := range b.Members {
		if m.User == userID {
			acc.Role = m.Role
			break
		}
	}
	return acc
}

func memberIndex(b *Board, userID string) int {
	for i, m := range b.Members {
		if m.User == userID {
			return i
		}
	}
	return -1
}
