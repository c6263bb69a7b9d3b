package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"scene-server/internal/memory"
	"scene-server/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ memory.StaticSource = (*redisStaticCache)(nil)

// missingStoryMarker кэширует отсутствие истории у чата.
const missingStoryMarker = "\x00none"

type redisStaticCache struct {
	next   memory.StaticSource
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStaticCache оборачивает источник статической памяти кэшем в Redis.
// Ошибки Redis не фатальны: запрос уходит в next.
func NewRedisStaticCache(next memory.StaticSource, client *redis.Client, ttl time.Duration, logger *zap.Logger) memory.StaticSource {
	return &redisStaticCache{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisStaticCache"),
	}
}

func storyKey(chatID string) string { return fmt.Sprintf("static:story:%s", chatID) }
func sheetKey(id string) string     { return fmt.Sprintf("static:sheet:%s", id) }

func (c *redisStaticCache) StoryPrompt(ctx context.Context, chatID string) (string, error) {
	key := storyKey(chatID)
	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == missingStoryMarker {
			return "", models.ErrNotFound
		}
		return cached, nil
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Redis get failed", zap.String("key", key), zap.Error(err))
	}

	prompt, err := c.next.StoryPrompt(ctx, chatID)
	value := prompt
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return "", err
		}
		value = missingStoryMarker
	}
	if setErr := c.client.Set(ctx, key, value, c.ttl).Err(); setErr != nil {
		c.logger.Warn("Redis set failed", zap.String("key", key), zap.Error(setErr))
	}
	return prompt, err
}

func (c *redisStaticCache) CharacterSheets(ctx context.Context, ids []string) ([]models.CharacterSheet, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sheetKey(id)
	}

	found := make(map[string]models.CharacterSheet, len(ids))
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("Redis mget failed", zap.Strings("ids", ids), zap.Error(err))
	} else {
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var sheet models.CharacterSheet
			if jsonErr := json.Unmarshal([]byte(raw), &sheet); jsonErr != nil {
				c.logger.Warn("Corrupted cached sheet", zap.String("id", ids[i]), zap.Error(jsonErr))
				continue
			}
			found[ids[i]] = sheet
		}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		fetched, err := c.next.CharacterSheets(ctx, missing)
		if err != nil {
			return nil, err
		}
		pipe := c.client.Pipeline()
		for _, sheet := range fetched {
			found[sheet.ID] = sheet
			raw, jsonErr := json.Marshal(sheet)
			if jsonErr != nil {
				continue
			}
			pipe.Set(ctx, sheetKey(sheet.ID), raw, c.ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			c.logger.Warn("Redis pipeline failed", zap.String("missing", strings.Join(missing, ",")), zap.Error(err))
		}
	}

	out := make([]models.CharacterSheet, 0, len(ids))
	for _, id := range ids {
		if sheet, ok := found[id]; ok {
			out = append(out, sheet)
		}
	}
	return out, nil
}
