package main

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func openMongoStore(ctx context.Context, uri, dbName string) (*mongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return &mongoStore{client: client, db: client.Database(dbName)}, nil
}

func (s *mongoStore) users() *mongo.Collection  { return s.db.Collection("users") }
func (s *mongoStore) boards() *mongo.Collection { return s.db.Collection("boards") }
func (s *mongoStore) lists() *mongo.Collection  { return s.db.Collection("lists") }
func (s *mongoStore) cards() *mongo.Collection  { return s.db.Collection("cards") }

func (s *mongoStore) Migrate(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.users(): {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		s.boards(): {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
			{Keys: bson.D{{Key: "members.user", Value: 1}}},
		},
		s.lists(): {
			{Keys: bson.D{{Key: "board", Value: 1}}},
		},
		s.cards(): {
			{Keys: bson.D{{Key: "board", Value: 1}}},
			{Keys: bson.D{{Key: "list", Value: 1}}},
			{Keys: bson.D{{Key: "labels", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

func (s *mongoStore) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

func (s *mongoStore) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter any) (*T, error) {
	var out T
	if err := coll.FindOne(ctx, filter).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	out := []T{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func replaceByID(ctx context.Context, coll *mongo.Collection, id string, doc any) error {
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func deleteByID(ctx context.Context, coll *mongo.Collection, id string) error {
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func pullRef(ctx context.Context, coll *mongo.Collection, id, field, ref string) error {
	res, err := coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$pull": bson.M{field: ref}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// users

func (s *mongoStore) CreateUser(ctx context.Context, u *User) error {
	if _, err := s.users().InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *mongoStore) UserByID(ctx context.Context, id string) (*User, error) {
	return findOne[User](ctx, s.users(), bson.M{"_id": id})
}

func (s *mongoStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	return findOne[User](ctx, s.users(), bson.M{"email": email})
}

func (s *mongoStore) UsersByIDs(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	return findAll[User](ctx, s.users(), bson.M{"_id": bson.M{"$in": ids}})
}

func (s *mongoStore) SearchUsers(ctx context.Context, q string, limit int) ([]User, error) {
	filter := bson.M{}
	if q != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}
		filter = bson.M{"$or": bson.A{bson.M{"name": re}, bson.M{"email": re}}}
	}
	return findAll[User](ctx, s.users(), filter, options.Find().SetLimit(int64(limit)))
}

func (s *mongoStore) UpdateUserName(ctx context.Context, id, name string) error {
	res, err := s.users().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"name": name}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// boards

func (s *mongoStore) InsertBoard(ctx context.Context, b *Board) error {
	b.normalize()
	_, err := s.boards().InsertOne(ctx, b)
	return err
}

func (s *mongoStore) GetBoard(ctx context.Context, id string) (*Board, error) {
	return findOne[Board](ctx, s.boards(), bson.M{"_id": id})
}

func (s *mongoStore) SaveBoard(ctx context.Context, b *Board) error {
	b.normalize()
	return replaceByID(ctx, s.boards(), b.ID, b)
}

func (s *mongoStore) DeleteBoard(ctx context.Context, id string) error {
	return deleteByID(ctx, s.boards(), id)
}

func (s *mongoStore) BoardsForUser(ctx context.Context, userID string) ([]Board, error) {
	return findAll[Board](ctx, s.boards(), bson.M{"$or": bson.A{
		bson.M{"owner": userID},
		bson.M{"members.user": userID},
	}})
}

func (s *mongoStore) PullListFromBoard(ctx context.Context, boardID, listID string) error {
	return pullRef(ctx, s.boards(), boardID, "lists", listID)
}

// lists

func (s *mongoStore) InsertList(ctx context.Context, l *List) error {
	l.normalize()
	_, err := s.lists().InsertOne(ctx, l)
	return err
}

func (s *mongoStore) GetList(ctx context.Context, id string) (*List, error) {
	return findOne[List](ctx, s.lists(), bson.M{"_id": id})
}

func (s *mongoStore) SaveList(ctx context.Context, l *List) error {
	l.normalize()
	return replaceByID(ctx, s.lists(), l.ID, l)
}

func (s *mongoStore) ListsByIDs(ctx context.Context, ids []string) ([]List, error) {
	if len(ids) == 0 {
		return []List{}, nil
	}
	return findAll[List](ctx, s.lists(), bson.M{"_id": bson.M{"$in": ids}})
}

func (s *mongoStore) DeleteList(ctx context.Context, id string) error {
	return deleteByID(ctx, s.lists(), id)
}

func (s *mongoStore) DeleteListsByBoard(ctx context.Context, boardID string) error {
	_, err := s.lists().DeleteMany(ctx, bson.M{"board": boardID})
	return err
}

func (s *mongoStore) PullCardFromList(ctx context.Context, listID, cardID string) error {
	return pullRef(ctx, s.lists(), listID, "cards", cardID)
}

// cards

func (s *mongoStore) InsertCard(ctx context.Context, c *Card) error {
	c.normalize()
	_, err := s.cards().InsertOne(ctx, c)
	return err
}

func (s *mongoStore) GetCard(ctx context.Context, id string) (*Card, error) {
	return findOne[Card](ctx, s.cards(), bson.M{"_id": id})
}

func (s *mongoStore) SaveCard(ctx context.Context, c *Card) error {
	c.normalize()
	return replaceByID(ctx, s.cards(), c.ID, c)
}

func (s *mongoStore) CardsByIDs(ctx context.Context, ids []string) ([]Card, error) {
	if len(ids) == 0 {
		return []Card{}, nil
	}
	return findAll[Card](ctx, s.cards(), bson.M{"_id": bson.M{"$in": ids}})
}

func (s *mongoStore) DeleteCard(ctx context.Context, id string) error {
	return deleteByID(ctx, s.cards(), id)
}

func (s *mongoStore) DeleteCardsByBoard(ctx context.Context, boardID string) error {
	_, err := s.cards().DeleteMany(ctx, bson.M{"board": boardID})
	return err
}

func (s *mongoStore) DeleteCardsByList(ctx context.Context, listID string) error {
	_, err := s.cards().DeleteMany(ctx, bson.M{"list": listID})
	return err
}

func (s *mongoStore) SearchCards(ctx context.Context, q CardQuery) ([]CardHit, error) {
	cur, err := s.cards().Aggregate(ctx, mongoSearchPipeline(q))
	if err != nil {
		return nil, err
	}
	out := []CardHit{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func ciContains(term string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
}

// mongoSearchPipeline translates q into an aggregation over the cards collection.
// Card-local filters run before the lookups so the joins only touch candidates.
func mongoSearchPipeline(q CardQuery) mongo.Pipeline {
	var p mongo.Pipeline
	match := func(filter bson.D) { p = append(p, bson.D{{Key: "$match", Value: filter}}) }

	if q.BoardIDs != nil {
		match(bson.D{{Key: "board", Value: bson.D{{Key: "$in", Value: q.BoardIDs}}}})
	}
	if q.Board != "" && q.BoardIsID {
		match(bson.D{{Key: "board", Value: q.Board}})
	}
	if len(q.Labels) > 0 {
		match(bson.D{{Key: "labels", Value: bson.D{{Key: "$in", Value: q.Labels}}}})
	}
	if q.Status != "" {
		match(bson.D{{Key: "status", Value: q.Status}})
	}
	if q.DueFrom != nil || q.DueTo != nil {
		rng := bson.D{}
		if q.DueFrom != nil {
			rng = append(rng, bson.E{Key: "$gte", Value: *q.DueFrom})
		}
		if q.DueTo != nil {
			rng = append(rng, bson.E{Key: "$lte", Value: *q.DueTo})
		}
		match(bson.D{{Key: "due_date", Value: rng}})
	}

	p = append(p,
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "boards"}, {Key: "localField", Value: "board"},
			{Key: "foreignField", Value: "_id"}, {Key: "as", Value: "board_doc"},
		}}},
		bson.D{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$board_doc"}, {Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "lists"}, {Key: "localField", Value: "list"},
			{Key: "foreignField", Value: "_id"}, {Key: "as", Value: "list_doc"},
		}}},
		bson.D{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$list_doc"}, {Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
	)

	if q.Board != "" && !q.BoardIsID {
		match(bson.D{{Key: "board_doc.title", Value: ciContains(q.Board)}})
	}
	if q.Text != "" {
		re := ciContains(q.Text)
		match(bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "title", Value: re}},
			bson.D{{Key: "description", Value: re}},
			bson.D{{Key: "board_doc.title", Value: re}},
			bson.D{{Key: "list_doc.title", Value: re}},
		}}})
	}

	p = append(p,
		bson.D{{Key: "$addFields", Value: bson.D{
			{Key: "board_title", Value: "$board_doc.title"},
			{Key: "list_title", Value: "$list_doc.title"},
		}}},
		bson.D{{Key: "$project", Value: bson.D{{Key: "board_doc", Value: 0}, {Key: "list_doc", Value: 0}}}},
		bson.D{{Key: "$limit", Value: int64(q.limit())}},
	)
	return p
}
