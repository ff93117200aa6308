package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Alvaro1251/Learnify/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	chatRecentKeyPrefix  = "chat:group:"
	chatRecentKeySuffix  = ":recent"
	chatVersionKeySuffix = ":ver"
	chatRecentMaxLen     = 50
	chatRecentTTL        = 10 * time.Minute
)

func chatRecentKey(groupID string) string {
	return chatRecentKeyPrefix + groupID + chatRecentKeySuffix
}

func chatVersionKey(groupID string) string {
	return chatRecentKeyPrefix + groupID + chatVersionKeySuffix
}

// ChatBackend is the durable chat log the cache sits in front of.
type ChatBackend interface {
	ChatStore
	RecentMessages(ctx context.Context, groupID string, limit int) ([]models.ChatMessage, error)
	CanRead(ctx context.Context, groupID, userID string) (bool, error)
}

// ChatHistoryCache keeps the newest chatRecentMaxLen messages of each group
// in a Redis list (newest at head) so history loads skip MongoDB. The list is
// only extended once it exists; a miss rebuilds it from the backend. Appends
// and rebuilds of one group hold the same lock, so a rebuild never sees a
// message whose push is still pending. Without Redis every call goes to the
// backend.
type ChatHistoryCache struct {
	backend ChatBackend
	rdb     *redis.Client
	log     *zap.Logger
	groups  groupLocks
}

func NewChatHistoryCache(backend ChatBackend, rdb *redis.Client, log *zap.Logger) *ChatHistoryCache {
	return &ChatHistoryCache{backend: backend, rdb: rdb, log: log}
}

// AppendChatMessage persists msg and then extends the cached tail.
func (c *ChatHistoryCache) AppendChatMessage(ctx context.Context, groupID string, msg models.ChatMessage) error {
	if c.rdb == nil {
		return c.backend.AppendChatMessage(ctx, groupID, msg)
	}

	unlock := c.groups.lock(groupID)
	defer unlock()

	if err := c.backend.AppendChatMessage(ctx, groupID, msg); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err == nil {
		key := chatRecentKey(groupID)
		_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Incr(ctx, chatVersionKey(groupID))
			p.LPushX(ctx, key, data)
			p.LTrim(ctx, key, 0, chatRecentMaxLen-1)
			return nil
		})
	}
	if err != nil {
		c.log.Warn("chat cache push failed, dropping cached tail", zap.String("group_id", groupID), zap.Error(err))
		_ = c.rdb.Del(ctx, chatRecentKey(groupID)).Err()
	}
	return nil
}

// RecentMessages returns at most limit messages, oldest first.
func (c *ChatHistoryCache) RecentMessages(ctx context.Context, groupID string, limit int) ([]models.ChatMessage, error) {
	if c.rdb == nil || limit <= 0 || limit > chatRecentMaxLen {
		return c.backend.RecentMessages(ctx, groupID, limit)
	}
	if msgs, ok := c.cached(ctx, groupID, limit); ok {
		return msgs, nil
	}

	unlock := c.groups.lock(groupID)
	defer unlock()
	if msgs, ok := c.cached(ctx, groupID, limit); ok {
		return msgs, nil
	}

	var (
		msgs       []models.ChatMessage
		backendErr error
	)
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		msgs, backendErr = c.backend.RecentMessages(ctx, groupID, chatRecentMaxLen)
		if backendErr != nil || len(msgs) == 0 {
			return nil
		}
		key := chatRecentKey(groupID)
		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key)
			for _, m := range msgs {
				data, err := json.Marshal(m)
				if err != nil {
					return err
				}
				p.LPush(ctx, key, data)
			}
			p.Expire(ctx, key, chatRecentTTL)
			return nil
		})
		return err
	}, chatVersionKey(groupID))
	if backendErr != nil {
		return nil, backendErr
	}
	if err != nil {
		// redis.TxFailedErr: another instance appended meanwhile.
		c.log.Debug("chat cache warm skipped", zap.String("group_id", groupID), zap.Error(err))
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (c *ChatHistoryCache) CanRead(ctx context.Context, groupID, userID string) (bool, error) {
	return c.backend.CanRead(ctx, groupID, userID)
}

func (c *ChatHistoryCache) cached(ctx context.Context, groupID string, limit int) ([]models.ChatMessage, bool) {
	raw, err := c.rdb.LRange(ctx, chatRecentKey(groupID), 0, int64(limit-1)).Result()
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	msgs := make([]models.ChatMessage, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var m models.ChatMessage
		if err := json.Unmarshal([]byte(raw[i]), &m); err != nil {
			return nil, false
		}
		msgs = append(msgs, m)
	}
	return msgs, true
}
