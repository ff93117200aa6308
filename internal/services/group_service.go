package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Alvaro1251/Learnify/internal/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	ErrGroupNotFound      = errors.New("study group not found")
	ErrNotMember          = errors.New("user is not a member of this group")
	ErrNotOwner           = errors.New("only the group owner can do this")
	ErrRequestNotFound    = errors.New("no pending request for this user")
	ErrOwnerCannotLeave   = errors.New("the owner cannot leave the group")
	ErrInvalidGroupFields = errors.New("name and description are required")
)

// JoinResult tells the caller what RequestJoin did.
type JoinResult string

const (
	JoinAdded          JoinResult = "joined"
	JoinRequested      JoinResult = "requested"
	JoinAlreadyMember  JoinResult = "already_member"
	JoinAlreadyPending JoinResult = "already_pending"
)

// NameLookup resolves display names for a batch of users.
type NameLookup interface {
	DisplayNames(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error)
}

// GroupService owns the study_groups collection, including the embedded
// chat log. Every membership-dependent write is a single conditional update,
// so a concurrent removal can never let a stale member slip through.
type GroupService struct {
	c     *mongo.Collection
	names NameLookup
	log   *zap.Logger
}

func NewGroupService(db *mongo.Database, names NameLookup, log *zap.Logger) *GroupService {
	return &GroupService{c: db.Collection("study_groups"), names: names, log: log}
}

// EnsureIndexes creates the listing and membership indexes.
func (s *GroupService) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner", Value: 1}}, Options: options.Index().SetName("idx_owner")},
		{Keys: bson.D{{Key: "members", Value: 1}}, Options: options.Index().SetName("idx_members")},
		{Keys: bson.D{{Key: "is_public", Value: 1}, {Key: "created_at", Value: -1}}, Options: options.Index().SetName("idx_public_created")},
	})
	return err
}

// Create inserts a group owned by ownerID, who is also its first member.
func (s *GroupService) Create(ctx context.Context, ownerID string, in models.StudyGroupCreate) (models.StudyGroup, error) {
	owner, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return models.StudyGroup{}, ErrInvalidID
	}
	name := strings.TrimSpace(in.Name)
	desc := strings.TrimSpace(in.Description)
	if name == "" || desc == "" {
		return models.StudyGroup{}, ErrInvalidGroupFields
	}
	isPublic := true
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}

	g := models.StudyGroup{
		ID:              primitive.NewObjectID(),
		Name:            name,
		Description:     desc,
		Owner:           owner,
		Members:         []primitive.ObjectID{owner},
		PendingRequests: []primitive.ObjectID{},
		Files:           []models.SharedFile{},
		Chat:            []models.ChatMessage{},
		IsPublic:        isPublic,
		ExamDate:        in.ExamDate.UTC(),
		CreatedAt:       time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.c.InsertOne(ctx, g); err != nil {
		return models.StudyGroup{}, err
	}
	s.log.Info("study group created", zap.String("group_id", g.ID.Hex()), zap.String("owner", ownerID))
	return g, nil
}

// GetByID loads the full group document.
func (s *GroupService) GetByID(ctx context.Context, groupID string) (models.StudyGroup, error) {
	gid, err := primitive.ObjectIDFromHex(groupID)
	if err != nil {
		return models.StudyGroup{}, ErrGroupNotFound
	}
	var g models.StudyGroup
	err = s.c.FindOne(ctx, bson.M{"_id": gid}).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.StudyGroup{}, ErrGroupNotFound
	}
	return g, err
}

// ListPublic pages through public groups, newest first. A non-empty
// excludeUserID hides groups that user already belongs to.
func (s *GroupService) ListPublic(ctx context.Context, skip, limit int64, excludeUserID string) ([]models.StudyGroup, int64, error) {
	filter := bson.M{"is_public": true}
	if excludeUserID != "" {
		if uid, err := primitive.ObjectIDFromHex(excludeUserID); err == nil {
			filter["members"] = bson.M{"$ne": uid}
		}
	}
	return s.list(ctx, filter, skip, limit)
}

// ListForUser pages through the groups userID is a member of.
func (s *GroupService) ListForUser(ctx context.Context, userID string, skip, limit int64) ([]models.StudyGroup, int64, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, 0, ErrInvalidID
	}
	return s.list(ctx, bson.M{"members": uid}, skip, limit)
}

func (s *GroupService) list(ctx context.Context, filter bson.M, skip, limit int64) ([]models.StudyGroup, int64, error) {
	total, err := s.c.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	// Chat logs can be large; list views only need their length.
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit).
		SetProjection(bson.M{"chat": bson.M{"$slice": -1}})

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	groups := make([]models.StudyGroup, 0, limit)
	if err := cur.All(ctx, &groups); err != nil {
		return nil, 0, err
	}
	return groups, total, nil
}

// MessageCounts returns the chat length of each group in ids.
func (s *GroupService) MessageCounts(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]int, error) {
	out := make(map[primitive.ObjectID]int, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": bson.M{"$in": ids}}}},
		{{Key: "$project", Value: bson.M{"n": bson.M{"$size": bson.M{"$ifNull": bson.A{"$chat", bson.A{}}}}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
			N  int                `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.ID] = row.N
	}
	return out, cur.Err()
}

// RequestJoin adds userID to a public group, or to the pending requests of a
// private one.
func (s *GroupService) RequestJoin(ctx context.Context, groupID, userID string) (JoinResult, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return "", ErrInvalidID
	}
	g, err := s.GetByID(ctx, groupID)
	if err != nil {
		return "", err
	}
	if g.HasMember(uid) {
		return JoinAlreadyMember, nil
	}

	if g.IsPublic {
		res, err := s.c.UpdateOne(ctx,
			bson.M{"_id": g.ID, "members": bson.M{"$ne": uid}},
			bson.M{"$addToSet": bson.M{"members": uid}, "$pull": bson.M{"pending_requests": uid}})
		if err != nil {
			return "", err
		}
		if res.ModifiedCount == 0 {
			return JoinAlreadyMember, nil
		}
		return JoinAdded, nil
	}

	if g.HasPending(uid) {
		return JoinAlreadyPending, nil
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": g.ID, "members": bson.M{"$ne": uid}},
		bson.M{"$addToSet": bson.M{"pending_requests": uid}})
	if err != nil {
		return "", err
	}
	if res.MatchedCount == 0 {
		return JoinAlreadyMember, nil
	}
	if res.ModifiedCount == 0 {
		return JoinAlreadyPending, nil
	}
	return JoinRequested, nil
}

// AcceptRequest moves userID from pending to members. Only the owner may
// accept.
func (s *GroupService) AcceptRequest(ctx context.Context, groupID, ownerID, userID string) error {
	gid, err := primitive.ObjectIDFromHex(groupID)
	if err != nil {
		return ErrGroupNotFound
	}
	owner, err1 := primitive.ObjectIDFromHex(ownerID)
	uid, err2 := primitive.ObjectIDFromHex(userID)
	if err1 != nil || err2 != nil {
		return ErrInvalidID
	}

	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": gid, "owner": owner, "pending_requests": uid},
		bson.M{"$pull": bson.M{"pending_requests": uid}, "$addToSet": bson.M{"members": uid}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}

	g, err := s.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g.Owner != owner {
		return ErrNotOwner
	}
	return ErrRequestNotFound
}

// Leave removes userID from members. The owner has to stay.
func (s *GroupService) Leave(ctx context.Context, groupID, userID string) error {
	gid, err := primitive.ObjectIDFromHex(groupID)
	if err != nil {
		return ErrGroupNotFound
	}
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return ErrInvalidID
	}

	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": gid, "owner": bson.M{"$ne": uid}, "members": uid},
		bson.M{"$pull": bson.M{"members": uid}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}

	g, err := s.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g.Owner == uid {
		return ErrOwnerCannotLeave
	}
	return ErrNotMember
}

// ShareFile appends a file reference. Only members may share.
func (s *GroupService) ShareFile(ctx context.Context, groupID, userID, fileURL string) (models.SharedFile, error) {
	gid, err := primitive.ObjectIDFromHex(groupID)
	if err != nil {
		return models.SharedFile{}, ErrGroupNotFound
	}
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.SharedFile{}, ErrInvalidID
	}

	f := models.SharedFile{
		FileID:     uuid.NewString(),
		UploadedBy: userID,
		FileURL:    fileURL,
		UploadedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": gid, "members": uid},
		bson.M{"$push": bson.M{"files": f}})
	if err != nil {
		return models.SharedFile{}, err
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetByID(ctx, groupID); err != nil {
			return models.SharedFile{}, err
		}
		return models.SharedFile{}, ErrNotMember
	}
	return f, nil
}

// AppendChatMessage appends msg to the group's chat log if and only if
// msg.SenderID is a member at the moment of the write. Membership check and
// append are one atomic document update.
func (s *GroupService) AppendChatMessage(ctx context.Context, groupID string, msg models.ChatMessage) error {
	gid, err := primitive.ObjectIDFromHex(groupID)
	if err != nil {
		return ErrNotMember
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": gid, "members": msg.SenderID},
		bson.M{"$push": bson.M{"chat": msg}})
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotMember
	}
	return nil
}

// RecentMessages returns at most limit of the latest messages, oldest first.
// An unknown group has no messages.
func (s *GroupService) RecentMessages(ctx context.Context, groupID string, limit int) ([]models.ChatMessage, error) {
	gid, err := primitive.ObjectIDFromHex(groupID)
	if err != nil {
		return []models.ChatMessage{}, nil
	}
	if limit <= 0 {
		return []models.ChatMessage{}, nil
	}

	var doc struct {
		Chat []models.ChatMessage `bson:"chat"`
	}
	err = s.c.FindOne(ctx, bson.M{"_id": gid},
		options.FindOne().SetProjection(bson.M{"_id": 0, "chat": bson.M{"$slice": -limit}})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []models.ChatMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	if doc.Chat == nil {
		doc.Chat = []models.ChatMessage{}
	}
	return doc.Chat, nil
}

// IsMember reports whether userID currently belongs to groupID.
func (s *GroupService) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	gid, err1 := primitive.ObjectIDFromHex(groupID)
	uid, err2 := primitive.ObjectIDFromHex(userID)
	if err1 != nil || err2 != nil {
		return false, nil
	}
	n, err := s.c.CountDocuments(ctx, bson.M{"_id": gid, "members": uid}, options.Count().SetLimit(1))
	return n > 0, err
}

// CanRead reports whether userID may read the group's chat and detail.
// Public and unknown groups are readable by anyone; a private group only by
// its members. userID may be empty for anonymous callers.
func (s *GroupService) CanRead(ctx context.Context, groupID, userID string) (bool, error) {
	gid, err := primitive.ObjectIDFromHex(groupID)
	if err != nil {
		return true, nil
	}
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		uid = primitive.NilObjectID
	}
	n, err := s.c.CountDocuments(ctx,
		bson.M{"_id": gid, "is_public": false, "members": bson.M{"$ne": uid}},
		options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Summaries resolves owner and member names for a page of groups.
func (s *GroupService) Summaries(ctx context.Context, groups []models.StudyGroup) ([]models.StudyGroupSummary, error) {
	names, err := s.namesFor(ctx, groups)
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	counts, err := s.MessageCounts(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.StudyGroupSummary, 0, len(groups))
	for _, g := range groups {
		sum := summarize(g, names)
		sum.MessagesCount = counts[g.ID]
		out = append(out, sum)
	}
	return out, nil
}

// Detail is the single-group view with files and the stored chat log.
// Sender names come from the log as written.
func (s *GroupService) Detail(ctx context.Context, g models.StudyGroup) (models.StudyGroupDetail, error) {
	names, err := s.namesFor(ctx, []models.StudyGroup{g})
	if err != nil {
		return models.StudyGroupDetail{}, err
	}
	chat := make([]models.ChatMessageView, 0, len(g.Chat))
	for _, m := range g.Chat {
		chat = append(chat, m.View())
	}
	files := g.Files
	if files == nil {
		files = []models.SharedFile{}
	}
	sum := summarize(g, names)
	sum.MessagesCount = len(g.Chat)
	return models.StudyGroupDetail{StudyGroupSummary: sum, Files: files, Chat: chat}, nil
}

func (s *GroupService) namesFor(ctx context.Context, groups []models.StudyGroup) (map[primitive.ObjectID]string, error) {
	seen := make(map[primitive.ObjectID]struct{})
	var ids []primitive.ObjectID
	add := func(id primitive.ObjectID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, g := range groups {
		add(g.Owner)
		for _, m := range g.Members {
			add(m)
		}
		for _, p := range g.PendingRequests {
			add(p)
		}
	}
	return s.names.DisplayNames(ctx, ids)
}

func summarize(g models.StudyGroup, names map[primitive.ObjectID]string) models.StudyGroupSummary {
	nameOr := func(id primitive.ObjectID, fallback string) string {
		if n, ok := names[id]; ok {
			return n
		}
		return fallback
	}

	members := make([]string, 0, len(g.Members))
	memberIDs := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		members = append(members, nameOr(m, "Unknown"))
		memberIDs = append(memberIDs, m.Hex())
	}
	pending := make([]string, 0, len(g.PendingRequests))
	pendingIDs := make([]string, 0, len(g.PendingRequests))
	for _, p := range g.PendingRequests {
		pending = append(pending, nameOr(p, "Unknown"))
		pendingIDs = append(pendingIDs, p.Hex())
	}

	return models.StudyGroupSummary{
		ID:                g.ID.Hex(),
		Name:              g.Name,
		Description:       g.Description,
		Owner:             nameOr(g.Owner, g.Owner.Hex()),
		OwnerID:           g.Owner.Hex(),
		Members:           members,
		MemberIDs:         memberIDs,
		PendingRequests:   pending,
		PendingRequestIDs: pendingIDs,
		IsPublic:          g.IsPublic,
		ExamDate:          g.ExamDate,
		CreatedAt:         g.CreatedAt,
		MembersCount:      len(g.Members),
		FilesCount:        len(g.Files),
	}
}
