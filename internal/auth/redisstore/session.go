// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/gatekeeper/internal/auth"
)

// createSessionScript stores the record only if the hash is new, indexes it
// under its identity and stretches the index expiry to cover it.
var createSessionScript = redis.NewScript(`
if not redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2], "NX") then
  return 0
end
redis.call("SADD", KEYS[2], ARGV[3])
if redis.call("PTTL", KEYS[2]) < tonumber(ARGV[2]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[2])
end
return 1
`)

// revokeSessionsScript deletes the sessions named in KEYS[2..] and drops
// their hashes (ARGV) from the index in KEYS[1]. Sessions indexed after the
// caller read the index are left alone.
var revokeSessionsScript = redis.NewScript(`
local removed = 0
for i = 2, #KEYS do
  removed = removed + redis.call("DEL", KEYS[i])
  redis.call("SREM", KEYS[1], ARGV[i - 1])
end
return removed
`)

// sessionClient is the subset of redis.UniversalClient the session store uses.
type sessionClient interface {
	redis.Scripter
	Get(ctx context.Context, key string) *redis.StringCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

type sessionRecord struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	UserAgent string    `json:"user_agent,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionRepository stores sessions as JSON values that expire with the
// session. A set per identity indexes the token hashes for revocation.
type SessionRepository struct {
	client sessionClient
	prefix string
	now    func() time.Time
}

// NewSessionRepository creates a session repository. An empty prefix uses
// DefaultPrefix.
func NewSessionRepository(client sessionClient, prefix string) *SessionRepository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SessionRepository{client: client, prefix: prefix, now: time.Now}
}

func (r *SessionRepository) sessionKey(tokenHash string) string {
	return r.prefix + "session:" + tokenHash
}

// indexKey hashes the identity so raw emails never appear in key names.
func (r *SessionRepository) indexKey(identity string) string {
	return r.prefix + "sessions:" + auth.HashToken(identity)
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, s *auth.Session) error {
	data, err := json.Marshal(sessionRecord{
		ID:        s.ID.String(),
		Identity:  s.Identity,
		UserAgent: s.UserAgent,
		IPAddress: s.IPAddress,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	})
	if err != nil {
		return oops.Code("SESSION_ENCODE_FAILED").With("session_id", s.ID.String()).Wrap(err)
	}

	ttl := max(s.ExpiresAt.Sub(r.now()).Milliseconds(), 1)
	created, err := createSessionScript.Run(ctx, r.client,
		[]string{r.sessionKey(s.TokenHash), r.indexKey(s.Identity)},
		data, ttl, s.TokenHash,
	).Int()
	if err != nil {
		return oops.Code("SESSION_INSERT_FAILED").
			With("operation", "insert session").
			With("session_id", s.ID.String()).
			Wrap(err)
	}
	if created == 0 {
		return oops.Code("SESSION_EXISTS").Wrap(auth.ErrAlreadyExists)
	}
	return nil
}

// GetByTokenHash returns auth.ErrNotFound once Redis has expired the record.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return decodeSession(tokenHash, data)
}

// DeleteByTokenHash removes a session and its index entry.
func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	s, err := r.GetByTokenHash(ctx, tokenHash)
	if errors.Is(err, auth.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.sessionKey(tokenHash))
		pipe.SRem(ctx, r.indexKey(s.Identity), tokenHash)
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// DeleteByIdentity removes every session of an identity.
func (r *SessionRepository) DeleteByIdentity(ctx context.Context, identity string) (int64, error) {
	index := r.indexKey(identity)
	hashes, err := r.client.SMembers(ctx, index).Result()
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_BY_IDENTITY_FAILED").
			With("operation", "read session index").
			Wrap(err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(hashes)+1)
	keys = append(keys, index)
	args := make([]any, 0, len(hashes))
	for _, h := range hashes {
		keys = append(keys, r.sessionKey(h))
		args = append(args, h)
	}

	n, err := revokeSessionsScript.Run(ctx, r.client, keys, args...).Int64()
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_BY_IDENTITY_FAILED").
			With("operation", "delete sessions by identity").
			Wrap(err)
	}
	return n, nil
}

// DeleteExpired prunes index entries whose session Redis has already
// expired and returns how many it removed. now is unused: Redis owns expiry.
func (r *SessionRepository) DeleteExpired(ctx context.Context, _ time.Time) (int64, error) {
	var (
		pruned int64
		cursor uint64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"sessions:*", 100).Result()
		if err != nil {
			return pruned, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
				With("operation", "scan session indexes").
				Wrap(err)
		}
		for _, key := range keys {
			n, err := r.pruneIndex(ctx, key)
			if err != nil {
				return pruned, err
			}
			pruned += n
		}
		if next == 0 {
			return pruned, nil
		}
		cursor = next
	}
}

func (r *SessionRepository) pruneIndex(ctx context.Context, indexKey string) (int64, error) {
	hashes, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "read session index").
			Wrap(err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	exists := make([]*redis.IntCmd, len(hashes))
	if _, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, h := range hashes {
			exists[i] = pipe.Exists(ctx, r.sessionKey(h))
		}
		return nil
	}); err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "check indexed sessions").
			Wrap(err)
	}

	var stale []any
	for i, cmd := range exists {
		if cmd.Val() == 0 {
			stale = append(stale, hashes[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if _, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, indexKey, stale...)
		return nil
	}); err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "prune session index").
			Wrap(err)
	}
	return int64(len(stale)), nil
}

func decodeSession(tokenHash string, data []byte) (*auth.Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").Wrap(err)
	}
	id, err := ulid.Parse(rec.ID)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", rec.ID).Wrap(err)
	}
	return &auth.Session{
		ID:        id,
		Identity:  rec.Identity,
		TokenHash: tokenHash,
		UserAgent: rec.UserAgent,
		IPAddress: rec.IPAddress,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

var _ auth.SessionRepository = (*SessionRepository)(nil)
