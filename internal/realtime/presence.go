package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mealdrop/mealdrop/internal/user"
)

const presenceKeyPrefix = "presence:user:"

// Presence mirrors connection registrations into redis with a TTL. The
// in-process registry stays authoritative for this instance; the mirror is
// the seam a multi-instance deployment needs to route emissions across
// processes. All writes are best effort and refreshed by the heartbeat, so a
// missed update self-heals within one TTL.
type Presence struct {
	client *redis.Client
	logger zerolog.Logger
	ttl    time.Duration
}

// NewPresence creates a presence mirror. ttl should comfortably exceed the
// heartbeat interval.
func NewPresence(client *redis.Client, logger zerolog.Logger, ttl time.Duration) *Presence {
	if ttl == 0 {
		ttl = 2 * time.Minute
	}
	return &Presence{client: client, logger: logger, ttl: ttl}
}

// NewRedisClient connects to redis and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

// MarkOnline records the user as reachable on this instance.
func (p *Presence) MarkOnline(ctx context.Context, userID string, role user.Role) {
	err := p.client.Set(ctx, presenceKeyPrefix+userID, string(role), p.ttl).Err()
	if err != nil {
		p.logger.Warn().Err(err).Str("user_id", userID).Msg("presence mark-online failed")
	}
}

// MarkOffline removes the user's presence key.
func (p *Presence) MarkOffline(ctx context.Context, userID string) {
	err := p.client.Del(ctx, presenceKeyPrefix+userID).Err()
	if err != nil {
		p.logger.Warn().Err(err).Str("user_id", userID).Msg("presence mark-offline failed")
	}
}

// IsOnline reports whether any instance currently holds a connection for the
// user. Errors are returned so callers can fall back to assuming offline.
func (p *Presence) IsOnline(ctx context.Context, userID string) (bool, error) {
	err := p.client.Get(ctx, presenceKeyPrefix+userID).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
