package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures talking to Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned by Load when no session is persisted for
// the device.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionCorrupt is returned when a stored blob cannot be decoded.
var ErrSessionCorrupt = errors.New("session corrupt")

// minRetention keeps a just-expired access token around long enough for
// the refresh token to be used.
const minRetention = time.Minute

// Store persists one session per device slot in Redis and carries the
// cross-device revocation channel.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store]. prefix namespaces every key and the
// revocation channel.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "sessionctl"
	}
	return &Store{
		redis:  client,
		prefix: prefix,
	}
}

func (s *Store) key(deviceID string) string {
	return s.prefix + ":session:" + deviceID
}

func (s *Store) revocationChannel() string {
	return s.prefix + ":revoked"
}

// Save persists sess under its DeviceID. retention bounds how long the blob
// outlives the access token so the refresh token stays usable; zero keeps it
// until explicitly deleted.
func (s *Store) Save(ctx context.Context, sess *Session, retention time.Duration) error {
	if sess == nil || sess.DeviceID == "" {
		return errors.New("session device id required")
	}
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if retention > 0 {
		ttl = retention
		if sess.ExpiresAt > 0 {
			ttl = time.Until(time.Unix(sess.ExpiresAt, 0)) + retention
		}
		if ttl < minRetention {
			ttl = minRetention
		}
	}

	if err := s.redis.Set(ctx, s.key(sess.DeviceID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Load returns the session persisted for deviceID. Blobs written by an
// older schema are rewritten in the current one, keeping their TTL.
func (s *Store) Load(ctx context.Context, deviceID string) (*Session, error) {
	key := s.key(deviceID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		if errors.Is(err, ErrSessionCorrupt) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	sess.DeviceID = deviceID

	if err := s.maybeMigrateSessionSchema(ctx, key, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete removes the session for deviceID. Deleting a missing session is
// not an error.
func (s *Store) Delete(ctx context.Context, deviceID string) error {
	if err := s.redis.Del(ctx, s.key(deviceID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// PublishRevocation tells every subscribed device that identityID was
// signed out elsewhere.
func (s *Store) PublishRevocation(ctx context.Context, identityID string) error {
	if err := s.redis.Publish(ctx, s.revocationChannel(), identityID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// SubscribeRevocations calls fn with the identity id of every revocation
// until ctx ends or stop is called. fn runs on the subscription goroutine.
func (s *Store) SubscribeRevocations(ctx context.Context, fn func(identityID string)) (stop func(), err error) {
	pubsub := s.redis.Subscribe(ctx, s.revocationChannel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fn(msg.Payload)
			}
		}
	}()

	return func() {
		cancel()
		_ = pubsub.Close()
		<-done
	}, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) maybeMigrateSessionSchema(ctx context.Context, key string, sess *Session) error {
	if sess == nil || sess.SchemaVersion == CurrentSchemaVersion {
		return nil
	}

	pttl, err := s.redis.PTTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	// go-redis reports -2 for a vanished key and -1 for no expiry.
	if pttl == -2 {
		return nil
	}
	if pttl < 0 {
		pttl = 0
	}

	sess.SchemaVersion = CurrentSchemaVersion
	encoded, err := Encode(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, key, encoded, pttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
