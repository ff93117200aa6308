package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Alvaro1251/Learnify/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	ErrPostNotFound      = errors.New("post not found")
	ErrInvalidPostFields = errors.New("title, description and subject are required")
	ErrEmptyResponse     = errors.New("response content is required")
)

const maxPostTitleLen = 255

// PostService owns the posts collection.
type PostService struct {
	c     *mongo.Collection
	names NameLookup
	log   *zap.Logger
}

func NewPostService(db *mongo.Database, names NameLookup, log *zap.Logger) *PostService {
	return &PostService{c: db.Collection("posts"), names: names, log: log}
}

func (s *PostService) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "subject", Value: 1}}, Options: options.Index().SetName("idx_subject")},
		{Keys: bson.D{{Key: "owner", Value: 1}}, Options: options.Index().SetName("idx_owner")},
		{Keys: bson.D{{Key: "creation_date", Value: -1}}, Options: options.Index().SetName("idx_creation_date")},
	})
	return err
}

// Create inserts a post owned by ownerID with no responses.
func (s *PostService) Create(ctx context.Context, ownerID string, in models.PostCreate) (models.Post, error) {
	owner, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return models.Post{}, ErrInvalidID
	}
	title := strings.TrimSpace(in.Title)
	desc := strings.TrimSpace(in.Description)
	subject := strings.TrimSpace(in.Subject)
	if title == "" || desc == "" || subject == "" || len(title) > maxPostTitleLen {
		return models.Post{}, ErrInvalidPostFields
	}

	p := models.Post{
		ID:          primitive.NewObjectID(),
		Title:       title,
		Description: desc,
		Subject:     subject,
		Owner:       owner,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
		Responses:   []models.PostResponse{},
	}
	if _, err := s.c.InsertOne(ctx, p); err != nil {
		return models.Post{}, err
	}
	s.log.Info("post created", zap.String("post_id", p.ID.Hex()), zap.String("owner", ownerID))
	return p, nil
}

func (s *PostService) GetByID(ctx context.Context, postID string) (models.Post, error) {
	pid, err := primitive.ObjectIDFromHex(postID)
	if err != nil {
		return models.Post{}, ErrPostNotFound
	}
	var p models.Post
	err = s.c.FindOne(ctx, bson.M{"_id": pid}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Post{}, ErrPostNotFound
	}
	return p, err
}

// postRow is a post without its responses, only their number.
type postRow struct {
	models.Post    `bson:",inline"`
	ResponsesCount int `bson:"responses_count"`
}

// Latest returns a page of posts, newest first, with owner names resolved.
func (s *PostService) Latest(ctx context.Context, skip, limit int64) ([]models.PostSummary, error) {
	cur, err := s.c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "creation_date", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$skip", Value: skip}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$addFields", Value: bson.M{"responses_count": bson.M{"$size": bson.M{"$ifNull": bson.A{"$responses", bson.A{}}}}}}},
		{{Key: "$project", Value: bson.M{"responses": 0}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []postRow
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	ids := make([]primitive.ObjectID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.Owner)
	}
	names, err := s.names.DisplayNames(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.PostSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.PostSummary{
			ID:             r.ID.Hex(),
			Title:          r.Title,
			Description:    r.Description,
			Subject:        r.Subject,
			Owner:          nameOrUnknown(names, r.Owner),
			OwnerID:        r.Owner.Hex(),
			CreatedAt:      r.CreatedAt,
			ResponsesCount: r.ResponsesCount,
		})
	}
	return out, nil
}

// AddResponse appends a response by userID and returns the updated post.
func (s *PostService) AddResponse(ctx context.Context, postID, userID, content string) (models.Post, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.Post{}, ErrInvalidID
	}
	pid, err := primitive.ObjectIDFromHex(postID)
	if err != nil {
		return models.Post{}, ErrPostNotFound
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Post{}, ErrEmptyResponse
	}

	resp := models.PostResponse{
		Owner:     uid,
		Content:   content,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	var p models.Post
	err = s.c.FindOneAndUpdate(ctx, bson.M{"_id": pid}, bson.M{"$push": bson.M{"responses": resp}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Post{}, ErrPostNotFound
	}
	return p, err
}

// ListForUser returns every post owned by userID, newest first.
func (s *PostService) ListForUser(ctx context.Context, userID string) ([]models.Post, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrInvalidID
	}
	cur, err := s.c.Find(ctx, bson.M{"owner": uid},
		options.Find().SetSort(bson.D{{Key: "creation_date", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	posts := []models.Post{}
	if err := cur.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Delete removes postID if userID owns it. Missing posts and posts of other
// users both report ErrPostNotFound.
func (s *PostService) Delete(ctx context.Context, postID, userID string) error {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return ErrInvalidID
	}
	pid, err := primitive.ObjectIDFromHex(postID)
	if err != nil {
		return ErrPostNotFound
	}
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": pid, "owner": uid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrPostNotFound
	}
	s.log.Info("post deleted", zap.String("post_id", postID), zap.String("owner", userID))
	return nil
}

// Details resolves the owner and responder names of posts in one lookup.
func (s *PostService) Details(ctx context.Context, posts []models.Post) ([]models.PostDetail, error) {
	seen := make(map[primitive.ObjectID]struct{})
	var ids []primitive.ObjectID
	add := func(id primitive.ObjectID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, p := range posts {
		add(p.Owner)
		for _, r := range p.Responses {
			add(r.Owner)
		}
	}
	names, err := s.names.DisplayNames(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.PostDetail, 0, len(posts))
	for _, p := range posts {
		responses := make([]models.PostResponseView, 0, len(p.Responses))
		for _, r := range p.Responses {
			responses = append(responses, models.PostResponseView{
				Owner:     nameOrUnknown(names, r.Owner),
				OwnerID:   r.Owner.Hex(),
				Content:   r.Content,
				CreatedAt: r.CreatedAt,
			})
		}
		out = append(out, models.PostDetail{
			ID:          p.ID.Hex(),
			Title:       p.Title,
			Description: p.Description,
			Subject:     p.Subject,
			Owner:       nameOrUnknown(names, p.Owner),
			OwnerID:     p.Owner.Hex(),
			CreatedAt:   p.CreatedAt,
			Responses:   responses,
		})
	}
	return out, nil
}

// Detail is Details for a single post.
func (s *PostService) Detail(ctx context.Context, p models.Post) (models.PostDetail, error) {
	out, err := s.Details(ctx, []models.Post{p})
	if err != nil {
		return models.PostDetail{}, err
	}
	return out[0], nil
}

func nameOrUnknown(names map[primitive.ObjectID]string, id primitive.ObjectID) string {
	if n, ok := names[id]; ok {
		return n
	}
	return "Unknown"
}
