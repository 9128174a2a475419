package main

import "time"

type Role string

const (
	RoleAdmin  Role = "Admin"
	RoleEditor Role = "Editor"
	RoleViewer Role = "Viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

type User struct {
	ID           string    `json:"id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

// UserSummary is the public shape of a user embedded in board views.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u User) Summary() UserSummary { return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email} }

type Member struct {
	User string `json:"user" bson:"user"`
	Role Role   `json:"role" bson:"role"`
}

type Board struct {
	ID          string    `json:"id" bson:"_id"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description" bson:"description"`
	Owner       string    `json:"owner" bson:"owner"`
	Members     []Member  `json:"members" bson:"members"`
	Lists       []string  `json:"lists" bson:"lists"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

type List struct {
	ID    string `json:"id" bson:"_id"`
	Title string `json:"title" bson:"title"`
	Board string `json:"board" bson:"board"`
	// Position is advisory; board.Lists holds the real order.
	Position  int       `json:"position" bson:"position"`
	Cards     []string  `json:"cards" bson:"cards"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

type Attachment struct {
	ID           string    `json:"id" bson:"_id"`
	Filename     string    `json:"filename" bson:"filename"`
	OriginalName string    `json:"originalname" bson:"originalname"`
	URL          string    `json:"url" bson:"url"`
	MimeType     string    `json:"mimetype" bson:"mimetype"`
	Size         int64     `json:"size" bson:"size"`
	UploadedBy   string    `json:"uploaded_by" bson:"uploaded_by"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

type Comment struct {
	ID        string    `json:"id" bson:"_id"`
	Author    string    `json:"author" bson:"author"`
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

type Activity struct {
	ID   string    `json:"id" bson:"_id"`
	Text string    `json:"text" bson:"text"`
	By   string    `json:"by" bson:"by"`
	At   time.Time `json:"at" bson:"at"`
}

type Card struct {
	ID          string       `json:"id" bson:"_id"`
	Title       string       `json:"title" bson:"title"`
	Description string       `json:"description" bson:"description"`
	List        string       `json:"list" bson:"list"`
	Board       string       `json:"board" bson:"board"`
	Position    int          `json:"position" bson:"position"`
	DueDate     *time.Time   `json:"due_date" bson:"due_date"`
	Labels      []string     `json:"labels" bson:"labels"`
	Status      string       `json:"status" bson:"status"`
	Completed   bool         `json:"completed" bson:"completed"`
	Attachments []Attachment `json:"attachments" bson:"attachments"`
	Comments    []Comment    `json:"comments" bson:"comments"`
	Activity    []Activity   `json:"activity" bson:"activity"`
	CreatedAt   time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" bson:"updated_at"`
}

// CardHit is a search result: the card plus the titles it was joined with.
type CardHit struct {
	Card       `bson:",inline"`
	BoardTitle string `json:"board_title" bson:"board_title"`
	ListTitle  string `json:"list_title" bson:"list_title"`
}

type MemberView struct {
	User UserSummary `json:"user"`
	Role Role        `json:"role"`
}

type ListView struct {
	List
	Cards []Card `json:"cards"`
}

// BoardDetail is a board with its owner, members, lists and cards expanded.
type BoardDetail struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Owner       UserSummary  `json:"owner"`
	Members     []MemberView `json:"members"`
	Lists       []ListView   `json:"lists"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// normalize replaces nil sequences so they persist and serialize as empty arrays.
func (b *Board) normalize() {
	if b.Members == nil {
		b.Members = []Member{}
	}
	if b.Lists == nil {
		b.Lists = []string{}
	}
}

func (l *List) normalize() {
	if l.Cards == nil {
		l.Cards = []string{}
	}
}

func (c *Card) normalize() {
	if c.Labels == nil {
		c.Labels = []string{}
	}
	if c.Attachments == nil {
		c.Attachments = []Attachment{}
	}
	if c.Comments == nil {
		c.Comments = []Comment{}
	}
	if c.Activity == nil {
		c.Activity = []Activity{}
	}
}
