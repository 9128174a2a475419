package main

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

type pgStore struct {
	db *sqlx.DB
}

func openPGStore(ctx context.Context, dsn string) (*pgStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return newPGStore(db), nil
}

func newPGStore(db *sql.DB) *pgStore { return &pgStore{db: sqlx.NewDb(db, "pgx")} }

func (s *pgStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *pgStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *pgStore) Close(context.Context) error { return s.db.Close() }

// jsonb stores a nested sequence in a jsonb column.
type jsonb[T any] struct{ V T }

func (j *jsonb[T]) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		var zero T
		j.V = zero
		return nil
	case []byte:
		return json.Unmarshal(v, &j.V)
	case string:
		return json.Unmarshal([]byte(v), &j.V)
	}
	return fmt.Errorf("jsonb: cannot scan %T", src)
}

func (j jsonb[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func noRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// users

const userColumns = `id, name, email, password_hash, created_at`

func (s *pgStore) CreateUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, name, email, password_hash, created_at) values($1,$2,$3,$4,$5)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

type pgUserRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r pgUserRow) user() User {
	return User{ID: r.ID, Name: r.Name, Email: r.Email, PasswordHash: r.PasswordHash, CreatedAt: r.CreatedAt}
}

func (s *pgStore) userWhere(ctx context.Context, cond string, arg any) (*User, error) {
	var row pgUserRow
	if err := s.db.GetContext(ctx, &row, `select `+userColumns+` from users where `+cond, arg); err != nil {
		return nil, noRows(err)
	}
	u := row.user()
	return &u, nil
}

func (s *pgStore) UserByID(ctx context.Context, id string) (*User, error) {
	return s.userWhere(ctx, `id=$1`, id)
}

func (s *pgStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	return s.userWhere(ctx, `email=$1`, email)
}

func (s *pgStore) users(ctx context.Context, query string, args ...any) ([]User, error) {
	var rows []pgUserRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.user())
	}
	return out, nil
}

func (s *pgStore) UsersByIDs(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	query, args, err := sqlx.In(`select `+userColumns+` from users where id in (?)`, ids)
	if err != nil {
		return nil, err
	}
	return s.users(ctx, s.db.Rebind(query), args...)
}

func (s *pgStore) SearchUsers(ctx context.Context, q string, limit int) ([]User, error) {
	return s.users(ctx,
		`select `+userColumns+` from users where name ilike $1 or email ilike $1 order by name, id limit $2`,
		likePattern(q), limit)
}

func (s *pgStore) UpdateUserName(ctx context.Context, id, name string) error {
	return affectedOne(s.db.ExecContext(ctx, `update users set name=$2 where id=$1`, id, name))
}

// boards

const boardColumns = `id, title, description, owner_id, members, list_ids, created_at, updated_at`

type pgBoardRow struct {
	ID          string          `db:"id"`
	Title       string          `db:"title"`
	Description string          `db:"description"`
	Owner       string          `db:"owner_id"`
	Members     jsonb[[]Member] `db:"members"`
	Lists       jsonb[[]string] `db:"list_ids"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func (r pgBoardRow) board() Board {
	b := Board{ID: r.ID, Title: r.Title, Description: r.Description, Owner: r.Owner,
		Members: r.Members.V, Lists: r.Lists.V, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	b.normalize()
	return b
}

func (s *pgStore) InsertBoard(ctx context.Context, b *Board) error {
	b.normalize()
	_, err := s.db.ExecContext(ctx,
		`insert into boards(`+boardColumns+`) values($1,$2,$3,$4,$5,$6,$7,$8)`,
		b.ID, b.Title, b.Description, b.Owner, jsonb[[]Member]{b.Members}, jsonb[[]string]{b.Lists}, b.CreatedAt, b.UpdatedAt)
	return err
}

func (s *pgStore) GetBoard(ctx context.Context, id string) (*Board, error) {
	var row pgBoardRow
	if err := s.db.GetContext(ctx, &row, `select `+boardColumns+` from boards where id=$1`, id); err != nil {
		return nil, noRows(err)
	}
	b := row.board()
	return &b, nil
}

func (s *pgStore) SaveBoard(ctx context.Context, b *Board) error {
	b.normalize()
	return affectedOne(s.db.ExecContext(ctx,
		`update boards set title=$2, description=$3, members=$4, list_ids=$5, updated_at=$6 where id=$1`,
		b.ID, b.Title, b.Description, jsonb[[]Member]{b.Members}, jsonb[[]string]{b.Lists}, b.UpdatedAt))
}

func (s *pgStore) DeleteBoard(ctx context.Context, id string) error {
	return affectedOne(s.db.ExecContext(ctx, `delete from boards where id=$1`, id))
}

func (s *pgStore) BoardsForUser(ctx context.Context, userID string) ([]Board, error) {
	var rows []pgBoardRow
	err := s.db.SelectContext(ctx, &rows,
		`select `+boardColumns+` from boards
		 where owner_id=$1 or members @> jsonb_build_array(jsonb_build_object('user', $1::text))
		 order by created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Board, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.board())
	}
	return out, nil
}

func (s *pgStore) PullListFromBoard(ctx context.Context, boardID, listID string) error {
	return affectedOne(s.db.ExecContext(ctx,
		`update boards set list_ids = list_ids - $2::text, updated_at=now() where id=$1`, boardID, listID))
}

// lists

const listColumns = `id, board_id, title, position, card_ids, created_at, updated_at`

type pgListRow struct {
	ID        string          `db:"id"`
	Board     string          `db:"board_id"`
	Title     string          `db:"title"`
	Position  int             `db:"position"`
	Cards     jsonb[[]string] `db:"card_ids"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (r pgListRow) list() List {
	l := List{ID: r.ID, Board: r.Board, Title: r.Title, Position: r.Position, Cards: r.Cards.V,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	l.normalize()
	return l
}

func (s *pgStore) InsertList(ctx context.Context, l *List) error {
	l.normalize()
	_, err := s.db.ExecContext(ctx,
		`insert into lists(`+listColumns+`) values($1,$2,$3,$4,$5,$6,$7)`,
		l.ID, l.Board, l.Title, l.Position, jsonb[[]string]{l.Cards}, l.CreatedAt, l.UpdatedAt)
	return err
}

func (s *pgStore) GetList(ctx context.Context, id string) (*List, error) {
	var row pgListRow
	if err := s.db.GetContext(ctx, &row, `select `+listColumns+` from lists where id=$1`, id); err != nil {
		return nil, noRows(err)
	}
	l := row.list()
	return &l, nil
}

func (s *pgStore) SaveList(ctx context.Context, l *List) error {
	l.normalize()
	return affectedOne(s.db.ExecContext(ctx,
		`update lists set title=$2, position=$3, card_ids=$4, updated_at=$5 where id=$1`,
		l.ID, l.Title, l.Position, jsonb[[]string]{l.Cards}, l.UpdatedAt))
}

func (s *pgStore) ListsByIDs(ctx context.Context, ids []string) ([]List, error) {
	if len(ids) == 0 {
		return []List{}, nil
	}
	query, args, err := sqlx.In(`select `+listColumns+` from lists where id in (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []pgListRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]List, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.list())
	}
	return out, nil
}

func (s *pgStore) DeleteList(ctx context.Context, id string) error {
	return affectedOne(s.db.ExecContext(ctx, `delete from lists where id=$1`, id))
}

func (s *pgStore) DeleteListsByBoard(ctx context.Context, boardID string) error {
	_, err := s.db.ExecContext(ctx, `delete from lists where board_id=$1`, boardID)
	return err
}

func (s *pgStore) PullCardFromList(ctx context.Context, listID, cardID string) error {
	return affectedOne(s.db.ExecContext(ctx,
		`update lists set card_ids = card_ids - $2::text, updated_at=now() where id=$1`, listID, cardID))
}

// cards

const cardColumns = `id, board_id, list_id, title, description, position, due_date, labels, status, completed,
	attachments, comments, activity, created_at, updated_at`

type pgCardRow struct {
	ID          string              `db:"id"`
	Board       string              `db:"board_id"`
	List        string              `db:"list_id"`
	Title       string              `db:"title"`
	Description string              `db:"description"`
	Position    int                 `db:"position"`
	DueDate     sql.NullTime        `db:"due_date"`
	Labels      jsonb[[]string]     `db:"labels"`
	Status      string              `db:"status"`
	Completed   bool                `db:"completed"`
	Attachments jsonb[[]Attachment] `db:"attachments"`
	Comments    jsonb[[]Comment]    `db:"comments"`
	Activity    jsonb[[]Activity]   `db:"activity"`
	CreatedAt   time.Time           `db:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at"`
}

func (r pgCardRow) card() Card {
	c := Card{ID: r.ID, Board: r.Board, List: r.List, Title: r.Title, Description: r.Description,
		Position: r.Position, Labels: r.Labels.V, Status: r.Status, Completed: r.Completed,
		Attachments: r.Attachments.V, Comments: r.Comments.V, Activity: r.Activity.V,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	if r.DueDate.Valid {
		t := r.DueDate.Time
		c.DueDate = &t
	}
	c.normalize()
	return c
}

func cardArgs(c *Card) []any {
	var due sql.NullTime
	if c.DueDate != nil {
		due = sql.NullTime{Time: *c.DueDate, Valid: true}
	}
	return []any{c.ID, c.Board, c.List, c.Title, c.Description, c.Position, due,
		jsonb[[]string]{c.Labels}, c.Status, c.Completed,
		jsonb[[]Attachment]{c.Attachments}, jsonb[[]Comment]{c.Comments}, jsonb[[]Activity]{c.Activity},
		c.CreatedAt, c.UpdatedAt}
}

func (s *pgStore) InsertCard(ctx context.Context, c *Card) error {
	c.normalize()
	_, err := s.db.ExecContext(ctx,
		`insert into cards(`+cardColumns+`) values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		cardArgs(c)...)
	return err
}

func (s *pgStore) GetCard(ctx context.Context, id string) (*Card, error) {
	var row pgCardRow
	if err := s.db.GetContext(ctx, &row, `select `+cardColumns+` from cards where id=$1`, id); err != nil {
		return nil, noRows(err)
	}
	c := row.card()
	return &c, nil
}

func (s *pgStore) SaveCard(ctx context.Context, c *Card) error {
	c.normalize()
	args := cardArgs(c)
	// created_at is immutable; keep updated_at as $14.
	args = append(args[:13:13], args[14])
	return affectedOne(s.db.ExecContext(ctx,
		`update cards set board_id=$2, list_id=$3, title=$4, description=$5, position=$6, due_date=$7,
		 labels=$8, status=$9, completed=$10, attachments=$11, comments=$12, activity=$13, updated_at=$14
		 where id=$1`,
		args...))
}

func (s *pgStore) CardsByIDs(ctx context.Context, ids []string) ([]Card, error) {
	if len(ids) == 0 {
		return []Card{}, nil
	}
	query, args, err := sqlx.In(`select `+cardColumns+` from cards where id in (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []pgCardRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]Card, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.card())
	}
	return out, nil
}

func (s *pgStore) DeleteCard(ctx context.Context, id string) error {
	return affectedOne(s.db.ExecContext(ctx, `delete from cards where id=$1`, id))
}

func (s *pgStore) DeleteCardsByBoard(ctx context.Context, boardID string) error {
	_, err := s.db.ExecContext(ctx, `delete from cards where board_id=$1`, boardID)
	return err
}

func (s *pgStore) DeleteCardsByList(ctx context.Context, listID string) error {
	_, err := s.db.ExecContext(ctx, `delete from cards where list_id=$1`, listID)
	return err
}

type pgCardHitRow struct {
	pgCardRow
	BoardTitle string `db:"board_title"`
	ListTitle  string `db:"list_title"`
}

func (s *pgStore) SearchCards(ctx context.Context, q CardQuery) ([]CardHit, error) {
	query, args, err := pgSearchQuery(q)
	if err != nil {
		return nil, err
	}
	var rows []pgCardHitRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]CardHit, 0, len(rows))
	for _, r := range rows {
		out = append(out, CardHit{Card: r.card(), BoardTitle: r.BoardTitle, ListTitle: r.ListTitle})
	}
	return out, nil
}

// pgSearchQuery builds the search SELECT with "?" placeholders; callers Rebind it.
func pgSearchQuery(q CardQuery) (string, []any, error) {
	var conds []string
	var args []any
	add := func(cond string, a ...any) {
		conds = append(conds, cond)
		args = append(args, a...)
	}

	if q.BoardIDs != nil {
		if len(q.BoardIDs) == 0 {
			add(`false`)
		} else {
			add(`c.board_id in (?)`, q.BoardIDs)
		}
	}
	if q.Board != "" {
		if q.BoardIsID {
			add(`c.board_id = ?`, q.Board)
		} else {
			add(`b.title ilike ?`, likePattern(q.Board))
		}
	}
	if len(q.Labels) > 0 {
		add(`exists (select 1 from jsonb_array_elements_text(c.labels) lbl where lbl in (?))`, q.Labels)
	}
	if q.Status != "" {
		add(`c.status = ?`, q.Status)
	}
	if q.DueFrom != nil {
		add(`c.due_date >= ?`, *q.DueFrom)
	}
	if q.DueTo != nil {
		add(`c.due_date <= ?`, *q.DueTo)
	}
	if q.Text != "" {
		p := likePattern(q.Text)
		add(`(c.title ilike ? or c.description ilike ? or b.title ilike ? or l.title ilike ?)`, p, p, p, p)
	}

	var sb strings.Builder
	sb.WriteString(`select c.id, c.board_id, c.list_id, c.title, c.description, c.position, c.due_date, c.labels,
	c.status, c.completed, c.attachments, c.comments, c.activity, c.created_at, c.updated_at,
	coalesce(b.title, '') as board_title, coalesce(l.title, '') as list_title
from cards c
left join boards b on b.id = c.board_id
left join lists l on l.id = c.list_id`)
	if len(conds) > 0 {
		sb.WriteString("\nwhere ")
		sb.WriteString(strings.Join(conds, " and "))
	}
	sb.WriteString(fmt.Sprintf("\norder by c.created_at, c.id\nlimit %d", q.limit()))
	return sqlx.In(sb.String(), args...)
}

// likePattern turns a literal fragment into a contains-pattern for ilike.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

const schema = `
create table if not exists users (
	id text primary key,
	name text not null,
	email text not null unique,
	password_hash text not null,
	created_at timestamptz not null default now()
);

create table if not exists boards (
	id text primary key,
	title text not null,
	description text not null default '',
	owner_id text not null,
	members jsonb not null default '[]',
	list_ids jsonb not null default '[]',
	created_at timestamptz not null default now(),
	updated_at timestamptz not null default now()
);
create index if not exists boards_owner_idx on boards(owner_id);
create index if not exists boards_members_idx on boards using gin (members jsonb_path_ops);

create table if not exists lists (
	id text primary key,
	board_id text not null,
	title text not null,
	position integer not null default 0,
	card_ids jsonb not null default '[]',
	created_at timestamptz not null default now(),
	updated_at timestamptz not null default now()
);
create index if not exists lists_board_idx on lists(board_id);

create table if not exists cards (
	id text primary key,
	board_id text not null,
	list_id text not null,
	title text not null,
	description text not null default '',
	position integer not null default 0,
	due_date timestamptz,
	labels jsonb not null default '[]',
	status text not null default '',
	completed boolean not null default false,
	attachments jsonb not null default '[]',
	comments jsonb not null default '[]',
	activity jsonb not null default '[]',
	created_at timestamptz not null default now(),
	updated_at timestamptz not null default now()
);
create index if not exists cards_board_idx on cards(board_id);
create index if not exists cards_list_idx on cards(list_id);
create index if not exists cards_labels_idx on cards using gin (labels);
`
