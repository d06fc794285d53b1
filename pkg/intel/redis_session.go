package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements SessionStore on Redis native structures:
//
//	<prefix><id>:msgs      LIST  JSON-encoded messages, RPUSH order = arrival order
//	<prefix><id>:intel:*   SET   one set per intelligence field kind
//	<prefix><id>:meta      HASH  scamType, scamDetected
//	<prefix><id>:reported  STRING set via SETNX
//
// SADD gives monotonic merges and SETNX gives the exactly-once reported CAS
// for free, including across processes sharing the store.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration // 0 = keys never expire
}

// RedisStoreOption is a functional option for configuring RedisStore.
type RedisStoreOption func(*RedisStore)

// WithSessionTTL sets a TTL applied to session keys on every touch.
// Zero keeps keys forever, matching the memory store's no-eviction posture.
func WithSessionTTL(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		s.ttl = d
	}
}

// WithKeyPrefix overrides the default "trapline:sess:" key prefix.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, opts ...RedisStoreOption) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	s := &RedisStore{
		rdb:    rdb,
		prefix: "trapline:sess:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (rs *RedisStore) key(sessionID, suffix string) string {
	return rs.prefix + sessionID + ":" + suffix
}

var intelKeys = map[string]string{
	"phone": "intel:phone",
	"upi":   "intel:upi",
	"bank":  "intel:bank",
	"url":   "intel:url",
}

func (rs *RedisStore) Append(ctx context.Context, sessionID string, msg Message) (int, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}
	count, err := rs.rdb.RPush(ctx, rs.key(sessionID, "msgs"), payload).Result()
	if err != nil {
		return 0, fmt.Errorf("append message: %w", err)
	}
	rs.touch(ctx, sessionID)
	return int(count), nil
}

func (rs *RedisStore) Snapshot(ctx context.Context, sessionID string) (Session, error) {
	pipe := rs.rdb.Pipeline()
	msgsCmd := pipe.LRange(ctx, rs.key(sessionID, "msgs"), 0, -1)
	phoneCmd := pipe.SMembers(ctx, rs.key(sessionID, intelKeys["phone"]))
	upiCmd := pipe.SMembers(ctx, rs.key(sessionID, intelKeys["upi"]))
	bankCmd := pipe.SMembers(ctx, rs.key(sessionID, intelKeys["bank"]))
	urlCmd := pipe.SMembers(ctx, rs.key(sessionID, intelKeys["url"]))
	metaCmd := pipe.HGetAll(ctx, rs.key(sessionID, "meta"))
	reportedCmd := pipe.Exists(ctx, rs.key(sessionID, "reported"))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Session{}, fmt.Errorf("snapshot: %w", err)
	}

	session := Session{ID: sessionID}
	for _, raw := range msgsCmd.Val() {
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return Session{}, fmt.Errorf("corrupt message in session %s: %w", sessionID, err)
		}
		session.Messages = append(session.Messages, msg)
	}

	session.Intelligence = Record{
		PhoneNumbers: phoneCmd.Val(),
		UPIIDs:       upiCmd.Val(),
		BankAccounts: bankCmd.Val(),
		URLs:         urlCmd.Val(),
	}.Normalize()

	meta := metaCmd.Val()
	session.ScamType = ScamType(meta["scamType"])
	session.ScamDetected = meta["scamDetected"] == "1"
	session.Reported = reportedCmd.Val() > 0

	return session, nil
}

func (rs *RedisStore) MergeIntelligence(ctx context.Context, sessionID string, rec Record) error {
	pipe := rs.rdb.Pipeline()
	for field, values := range map[string][]string{
		"phone": rec.PhoneNumbers,
		"upi":   rec.UPIIDs,
		"bank":  rec.BankAccounts,
		"url":   rec.URLs,
	} {
		if len(values) == 0 {
			continue
		}
		members := make([]interface{}, len(values))
		for i, v := range values {
			members[i] = v
		}
		pipe.SAdd(ctx, rs.key(sessionID, intelKeys[field]), members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("merge intelligence: %w", err)
	}
	rs.touch(ctx, sessionID)
	return nil
}

func (rs *RedisStore) SetClassification(ctx context.Context, sessionID string, t ScamType) error {
	if err := rs.rdb.HSet(ctx, rs.key(sessionID, "meta"), "scamType", string(t)).Err(); err != nil {
		return fmt.Errorf("set classification: %w", err)
	}
	return nil
}

func (rs *RedisStore) MarkScamDetected(ctx context.Context, sessionID string) error {
	if err := rs.rdb.HSet(ctx, rs.key(sessionID, "meta"), "scamDetected", "1").Err(); err != nil {
		return fmt.Errorf("mark detected: %w", err)
	}
	return nil
}

func (rs *RedisStore) TryMarkReported(ctx context.Context, sessionID string) (bool, error) {
	won, err := rs.rdb.SetNX(ctx, rs.key(sessionID, "reported"), "1", rs.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark reported: %w", err)
	}
	return won, nil
}

func (rs *RedisStore) Close() error {
	return rs.rdb.Close()
}

// touch refreshes key TTLs when expiry is configured. Best effort: a failed
// expire never fails the calling operation.
func (rs *RedisStore) touch(ctx context.Context, sessionID string) {
	if rs.ttl <= 0 {
		return
	}
	pipe := rs.rdb.Pipeline()
	pipe.Expire(ctx, rs.key(sessionID, "msgs"), rs.ttl)
	pipe.Expire(ctx, rs.key(sessionID, "meta"), rs.ttl)
	// The reported flag must outlive every other session key: if it expired
	// while the conversation stayed active, the next trigger evaluation would
	// win the SETNX again and emit a duplicate report.
	pipe.Expire(ctx, rs.key(sessionID, "reported"), rs.ttl)
	for _, suffix := range intelKeys {
		pipe.Expire(ctx, rs.key(sessionID, suffix), rs.ttl)
	}
	_, _ = pipe.Exec(ctx)
}

// Ensure RedisStore implements SessionStore
var _ SessionStore = (*RedisStore)(nil)
