package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Alvaro1251/Learnify/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Error texts unicast to the sender.
const (
	ChatErrMissingFields  = "sender_id and content are required"
	ChatErrMalformed      = "message must be a JSON object with sender_id and content"
	ChatErrNotMember      = "You must be a member of this group to send messages"
	ChatErrSenderMismatch = "sender_id does not match the authenticated user"
	ChatErrRateLimited    = "You are sending messages too fast"
	ChatErrInternal       = "Failed to send message"
)

// ChatStore persists chat messages. AppendChatMessage must fail with
// ErrNotMember unless the sender is a member at the moment of the write.
type ChatStore interface {
	AppendChatMessage(ctx context.Context, groupID string, msg models.ChatMessage) error
}

// DisplayNameResolver returns "" with no error when the user has no usable
// name.
type DisplayNameResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// ChatService turns inbound frames into persisted, broadcast messages.
// Append and broadcast for one group run under the same lock, so every
// connection sees messages in log order.
type ChatService struct {
	store    ChatStore
	names    DisplayNameResolver
	registry *ConnectionRegistry
	log      *zap.Logger
	timeout  time.Duration
	now      func() time.Time

	groups groupLocks
}

func NewChatService(store ChatStore, names DisplayNameResolver, registry *ConnectionRegistry, log *zap.Logger, timeout time.Duration) *ChatService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ChatService{
		store:    store,
		names:    names,
		registry: registry,
		log:      log,
		timeout:  timeout,
		now:      time.Now,
	}
}

// HandleRaw decodes one text frame from c and handles it. Every failure is
// reported to c alone; nothing here ends the connection.
func (s *ChatService) HandleRaw(ctx context.Context, c *ChatClient, data []byte) {
	if !c.Allow() {
		s.registry.Unicast(c, models.NewChatError(ChatErrRateLimited))
		return
	}

	var in models.ChatInbound
	if err := json.Unmarshal(data, &in); err != nil {
		s.registry.Unicast(c, models.NewChatError(ChatErrMalformed))
		return
	}
	s.HandleIncoming(ctx, c, in.SenderID, in.Content)
}

// HandleIncoming validates, persists and broadcasts one message.
func (s *ChatService) HandleIncoming(ctx context.Context, c *ChatClient, senderID, content string) {
	senderID = strings.TrimSpace(senderID)
	if senderID == "" || strings.TrimSpace(content) == "" {
		s.registry.Unicast(c, models.NewChatError(ChatErrMissingFields))
		return
	}
	if c.UserID != "" && c.UserID != senderID {
		s.registry.Unicast(c, models.NewChatError(ChatErrSenderMismatch))
		return
	}

	sender, err := primitive.ObjectIDFromHex(senderID)
	if err != nil {
		s.registry.Unicast(c, models.NewChatError(ChatErrNotMember))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	name, err := s.names.DisplayName(ctx, senderID)
	if err != nil {
		s.log.Error("resolve chat sender name", zap.String("sender_id", senderID), zap.Error(err))
		s.registry.Unicast(c, models.NewChatError(ChatErrInternal))
		return
	}
	if name == "" {
		name = senderID
	}

	unlock := s.groups.lock(c.GroupID)
	defer unlock()

	// Mongo keeps milliseconds; truncate so the broadcast matches the log.
	msg := models.ChatMessage{
		SenderID:  sender,
		Sender:    name,
		Content:   content,
		Timestamp: s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.store.AppendChatMessage(ctx, c.GroupID, msg); err != nil {
		if errors.Is(err, ErrNotMember) {
			s.log.Debug("chat message from non-member rejected",
				zap.String("group_id", c.GroupID), zap.String("sender_id", senderID))
			s.registry.Unicast(c, models.NewChatError(ChatErrNotMember))
			return
		}
		s.log.Error("persist chat message", zap.String("group_id", c.GroupID), zap.Error(err))
		s.registry.Unicast(c, models.NewChatError(ChatErrInternal))
		return
	}

	s.registry.Broadcast(c.GroupID, models.ChatOutbound{
		Type:       models.ChatEventMessage,
		SenderID:   senderID,
		Sender:     name,
		SenderName: name,
		Content:    content,
		Timestamp:  msg.Timestamp.Format(time.RFC3339Nano),
	})
}
