package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const redisCacheTTL = 5 * time.Minute
const redisKeyPrefix = "btw:session:"

// Session is the authenticated identity behind a session token.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore looks up session metadata by token hash.
type SessionStore interface {
	Lookup(ctx context.Context, tokenHash string) (*Session, error)
}

// CachedSessionStore implements SessionStore with PostgreSQL + Redis cache.
type CachedSessionStore struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewCachedSessionStore(db *pgxpool.Pool, rdb *redis.Client) *CachedSessionStore {
	return &CachedSessionStore{db: db, redis: rdb}
}

func (s *CachedSessionStore) Lookup(ctx context.Context, tokenHash string) (*Session, error) {
	// Check Redis cache first
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, redisKeyPrefix+tokenHash).Bytes()
		if err == nil {
			var sess Session
			if err := json.Unmarshal(cached, &sess); err == nil {
				return &sess, nil
			}
		}
	}

	// Query PostgreSQL
	sess, err := s.lookupDB(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	// Cache in Redis
	if s.redis != nil {
		data, err := json.Marshal(sess)
		if err == nil {
			s.redis.Set(ctx, redisKeyPrefix+tokenHash, data, redisCacheTTL)
		}
	}

	return sess, nil
}

func (s *CachedSessionStore) lookupDB(ctx context.Context, tokenHash string) (*Session, error) {
	var sess Session
	var email, name *string

	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, email, name, expires_at
		FROM sessions
		WHERE token_hash = $1
		  AND expires_at > NOW()
	`, tokenHash).Scan(
		&sess.ID,
		&sess.UserID,
		&email,
		&name,
		&sess.ExpiresAt,
	)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	if email != nil {
		sess.Email = *email
	}
	if name != nil {
		sess.Name = *name
	}

	// Update last_seen_at asynchronously (fire-and-forget)
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.db.Exec(bgCtx, `UPDATE sessions SET last_seen_at = NOW() WHERE id = $1`, sess.ID)
	}()

	return &sess, nil
}
