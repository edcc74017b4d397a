package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sentinel errors
var (
	ErrNotFound = errors.New("session not found")
)

const activeSetKey = "active_sessions"

func sessionKey(id string) string { return "session:" + id }
func resultKey(id string) string  { return "session:" + id + ":result" }

// casScript switches the status field only when the current value is one of
// the allowed source states, refreshing the TTL on success. Returns 1 when
// switched, 0 when the current status did not match, -1 when the record is
// gone. Atomicity here is what makes task replays harmless.
var casScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
  return -1
end
for i = 3, #ARGV do
  if cur == ARGV[i] then
    redis.call('HSET', KEYS[1], 'status', ARGV[2])
    redis.call('EXPIRE', KEYS[1], ARGV[1])
    return 1
  end
end
return 0
`)

// Store persists session records in Redis: a hash per session, a hash for
// its last execution result, and a set indexing active session ids. Every
// record carries a sliding TTL refreshed on mutation.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to Redis at addr/db. The connection is lazy; call Ping to
// verify reachability.
func New(addr string, db int, ttl time.Duration) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies the backing store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

// TTL returns the sliding session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create writes a fresh pending record in a single round-trip and indexes
// it in the active set.
func (s *Store) Create(ctx context.Context, id, environment string) (*Session, error) {
	sess := &Session{
		ID:          id,
		Environment: environment,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, sessionKey(id), sess.fields())
	pipe.Expire(ctx, sessionKey(id), s.ttl)
	pipe.SAdd(ctx, activeSetKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return sess, nil
}

// Update applies a partial update. Empty values are dropped so a writer
// holding only part of the record cannot blank out fields; the TTL is
// refreshed on every successful update.
func (s *Store) Update(ctx context.Context, id string, fields map[string]string) error {
	n, err := s.rdb.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	clean := make(map[string]any, len(fields))
	for k, v := range fields {
		if v == "" {
			continue
		}
		clean[k] = v
	}

	pipe := s.rdb.TxPipeline()
	if len(clean) > 0 {
		pipe.HSet(ctx, sessionKey(id), clean)
	}
	pipe.Expire(ctx, sessionKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	return nil
}

// SetStatus is shorthand for an unconditional status update. Workers should
// prefer CompareAndSetStatus; see the replay notes there.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	return s.Update(ctx, id, map[string]string{FieldStatus: string(status)})
}

// CompareAndSetStatus atomically moves the session to status `to` when its
// current status is one of `from`. Reports whether the transition happened;
// ErrNotFound when the record is gone. Task handlers use this so an
// at-least-once redelivery cannot regress a session that has moved on.
func (s *Store) CompareAndSetStatus(ctx context.Context, id string, to Status, from ...Status) (bool, error) {
	args := make([]any, 0, len(from)+2)
	args = append(args, int(s.ttl.Seconds()), string(to))
	for _, f := range from {
		args = append(args, string(f))
	}

	n, err := casScript.Run(ctx, s.rdb, []string{sessionKey(id)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("compare-and-set status: %w", err)
	}
	switch n {
	case 1:
		return true, nil
	case -1:
		return false, ErrNotFound
	default:
		return false, nil
	}
}

// Get reads the full session record.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	m, err := s.rdb.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return parseSession(m)
}

// Exists reports whether a record for id is present.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("checking session: %w", err)
	}
	return n > 0, nil
}

// Delete removes the record, its result key, and the active-set entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	del := pipe.Del(ctx, sessionKey(id))
	pipe.Del(ctx, resultKey(id))
	pipe.SRem(ctx, activeSetKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveResult stores the last execution result under its own key with the
// session TTL and touches last_execution_at on the record.
func (s *Store) SaveResult(ctx context.Context, id string, res *ExecutionResult) error {
	now := time.Now().UTC()
	stored := *res
	if stored.Timestamp.IsZero() {
		stored.Timestamp = now
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, resultKey(id), stored.fields())
	pipe.Expire(ctx, resultKey(id), s.ttl)
	pipe.HSet(ctx, sessionKey(id), FieldLastExecutionAt, now.Format(time.RFC3339Nano))
	pipe.Expire(ctx, sessionKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving result: %w", err)
	}
	return nil
}

// LastResult reads the last execution result for id.
func (s *Store) LastResult(ctx context.Context, id string) (*ExecutionResult, error) {
	m, err := s.rdb.HGetAll(ctx, resultKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading result: %w", err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return parseResult(m)
}

// ClearContainer drops the container handle from the record, keeping the
// invariant that only ready/executing/stopping sessions hold one.
func (s *Store) ClearContainer(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.HDel(ctx, sessionKey(id), FieldContainerID)
	pipe.Expire(ctx, sessionKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clearing container: %w", err)
	}
	return nil
}

// ActiveSessions returns the current members of the active set. Membership
// is a hint; records expire independently and the reaper reconciles.
func (s *Store) ActiveSessions(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing active sessions: %w", err)
	}
	return ids, nil
}

// ReconcileActiveSet drops active-set members whose record has expired and
// returns the removed ids.
func (s *Store) ReconcileActiveSet(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("reconciling active set: %w", err)
	}

	var removed []string
	for _, id := range ids {
		n, err := s.rdb.Exists(ctx, sessionKey(id)).Result()
		if err != nil {
			return removed, fmt.Errorf("reconciling active set: %w", err)
		}
		if n > 0 {
			continue
		}
		if err := s.rdb.SRem(ctx, activeSetKey, id).Err(); err != nil {
			return removed, fmt.Errorf("reconciling active set: %w", err)
		}
		removed = append(removed, id)
	}
	return removed, nil
}
