package services

import (
	"context"
	"errors"
	"fmt"
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
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrInvalidID    = errors.New("invalid identifier")
)

const displayNameTTL = 10 * time.Minute

// UserService reads and writes the users collection.
type UserService struct {
	c     *mongo.Collection
	cache *CacheService
	log   *zap.Logger
}

func NewUserService(db *mongo.Database, cache *CacheService, log *zap.Logger) *UserService {
	return &UserService{c: db.Collection("users"), cache: cache, log: log}
}

// EnsureIndexes creates the unique email index.
func (s *UserService) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("uniq_email").SetUnique(true),
	})
	return err
}

// Create inserts a new active user. Email is stored lowercased.
func (s *UserService) Create(ctx context.Context, email, hashedPassword string) (models.User, error) {
	u := models.User{
		ID:             primitive.NewObjectID(),
		Email:          normalizeEmail(email),
		HashedPassword: hashedPassword,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, err
	}
	return u, nil
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := s.c.FindOne(ctx, bson.M{"email": normalizeEmail(email)}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrUserNotFound
	}
	return u, err
}

func (s *UserService) FindByID(ctx context.Context, userID string) (models.User, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.User{}, ErrUserNotFound
	}
	var u models.User
	err = s.c.FindOne(ctx, bson.M{"_id": oid}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrUserNotFound
	}
	return u, err
}

// UpdateProfile sets the provided fields and returns the updated user.
// The cached display name is dropped so new chat messages pick up a rename.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (models.User, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.User{}, ErrUserNotFound
	}

	set := bson.M{}
	if upd.FullName != nil {
		set["full_name"] = strings.TrimSpace(*upd.FullName)
	}
	if upd.LastName != nil {
		set["last_name"] = strings.TrimSpace(*upd.LastName)
	}
	if upd.Career != nil {
		set["career"] = *upd.Career
	}
	if upd.University != nil {
		set["university"] = *upd.University
	}
	if upd.BirthDate != nil {
		set["birth_date"] = upd.BirthDate.UTC()
	}
	if len(set) == 0 {
		return s.FindByID(ctx, userID)
	}

	var u models.User
	err = s.c.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}

	if err := s.cache.Invalidate(ctx, CacheKey("displayname", userID)); err != nil {
		s.log.Warn("failed to drop cached display name", zap.String("user_id", userID), zap.Error(err))
	}
	return u, nil
}

// DisplayName resolves the "first last" name of userID. Unknown users and
// users without a first name yield "" with no error; only storage failures
// are returned as errors.
func (s *UserService) DisplayName(ctx context.Context, userID string) (string, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return "", nil
	}

	key := CacheKey("displayname", userID)
	var cached string
	if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.log.Debug("display name cache read failed", zap.Error(err))
	} else if hit {
		return cached, nil
	}
	version, verErr := s.cache.Version(ctx, key)

	var u models.User
	err = s.c.FindOne(ctx, bson.M{"_id": oid},
		options.FindOne().SetProjection(bson.M{"full_name": 1, "last_name": 1})).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup display name: %w", err)
	}

	name := u.DisplayName()
	if name != "" && verErr == nil {
		if _, err := s.cache.SetIfVersion(ctx, key, name, displayNameTTL, version); err != nil {
			s.log.Debug("display name cache write failed", zap.Error(err))
		}
	}
	return name, nil
}

// DisplayNames resolves many users in one query. Users without a usable name
// are absent from the result.
func (s *UserService) DisplayNames(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error) {
	out := make(map[primitive.ObjectID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"full_name": 1, "last_name": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var u models.User
		if err := cur.Decode(&u); err != nil {
			continue
		}
		if name := u.DisplayName(); name != "" {
			out[u.ID] = name
		}
	}
	return out, cur.Err()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
