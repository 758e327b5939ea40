package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis"
	log "github.com/sirupsen/logrus"
	"healx.io/healx/common/logging"
	se "healx.io/healx/errors"
	md "healx.io/healx/models"
)

// ShareStore vends operations to manage share sessions
type ShareStore interface {
	Create(ctx context.Context, s *md.ShareSession) error
	// Get returns the session of given token, expired or not. Once the full session is no longer
	// retained only its token and expiry are returned.
	Get(ctx context.Context, token string) (*md.ShareSession, error)
	// ListByOwner returns the unexpired sessions of ownerID, latest expiry first
	ListByOwner(ctx context.Context, ownerID string) ([]*md.ShareSession, error)
	Revoke(ctx context.Context, ownerID, token string) error
}

// RedisShareStore keeps each share session in a hash whose TTL is the session expiry plus
// Retention. A tombstone holding only the expiry outlives the hash, so that expired links are
// told apart from invalid ones forever. A per-owner sorted set scored by expiry indexes the
// sessions of each owner.
type RedisShareStore struct {
	DB        *redis.Client
	Retention time.Duration
	Now       func() time.Time
}

const (
	fieldNameShareOwnerID   = "ownerId"
	fieldNameSharePINHash   = "pinHash"
	fieldNameShareExpiresAt = "expiresAt"
	fieldNameShareRecordIDs = "recordIds"
	fieldNameShareCreatedAt = "createdAt"

	keyTmplShare       = "share.%s"
	keyTmplShareExpiry = "share.expired.%s"
	keyTmplOwnerShares = "shares.%s"
)

func NewRedisShareStore(db *redis.Client, retention time.Duration) *RedisShareStore {
	return &RedisShareStore{DB: db, Retention: retention, Now: time.Now}
}

func (s *RedisShareStore) Create(ctx context.Context, sess *md.ShareSession) error {
	const errMsg = "error saving share session"
	clog := logging.WithFuncName().WithFields(log.Fields{"ownerID": sess.OwnerID, "expiresAt": sess.ExpiresAt})
	ids, err := json.Marshal(sess.RecordIDs)
	if err != nil {
		clog.WithError(err).Error("error marshalling record ids")
		return se.NewServiceFailure(errMsg).WithCause(err)
	}
	key, idx := shareKey(sess.Token), ownerSharesKey(sess.OwnerID)
	staleBefore := s.Now().Add(-s.Retention)
	db := s.DB.WithContext(ctx)
	if _, err := db.TxPipelined(func(p redis.Pipeliner) error {
		p.HMSet(key, map[string]interface{}{
			fieldNameShareOwnerID:   sess.OwnerID,
			fieldNameSharePINHash:   sess.PINHash,
			fieldNameShareExpiresAt: toMillis(sess.ExpiresAt),
			fieldNameShareRecordIDs: ids,
			fieldNameShareCreatedAt: toMillis(sess.CreationTime),
		})
		p.ExpireAt(key, sess.ExpiresAt.Add(s.Retention))
		p.Set(shareExpiryKey(sess.Token), toMillis(sess.ExpiresAt), 0)
		p.ZAdd(idx, redis.Z{Score: float64(toMillis(sess.ExpiresAt)), Member: sess.Token})
		// entries whose hash is gone by now are pruned lazily here
		p.ZRemRangeByScore(idx, "-inf", "("+strconv.FormatInt(toMillis(staleBefore), 10))
		return nil
	}); err != nil {
		clog.WithError(err).Error("error calling redis to save share session")
		return se.NewServiceFailure(errMsg).WithCause(err)
	}
	return nil
}

func (s *RedisShareStore) Get(ctx context.Context, token string) (*md.ShareSession, error) {
	clog := logging.WithFuncName()
	m, err := s.DB.WithContext(ctx).HGetAll(shareKey(token)).Result()
	if err != nil {
		msg := "error getting share session"
		clog.WithError(err).Error(msg)
		return nil, se.NewServiceFailure(msg).WithCause(err)
	}
	// redis returns an empty map once the session had been removed
	if len(m) == 0 {
		return s.getTombstone(ctx, token)
	}
	sess, err := toShareSession(token, m)
	if err != nil {
		clog.WithError(err).Error("error unmarshalling share session")
		return nil, se.NewServiceFailure("error reading share session").WithCause(err)
	}
	return sess, nil
}

// getTombstone returns an expired session carrying no PIN and no records
func (s *RedisShareStore) getTombstone(ctx context.Context, token string) (*md.ShareSession, error) {
	exp, err := s.DB.WithContext(ctx).Get(shareExpiryKey(token)).Int64()
	if err == redis.Nil {
		return nil, se.NewNotFound("share session not found")
	} else if err != nil {
		msg := "error getting share session expiry"
		logging.WithFuncName().WithError(err).Error(msg)
		return nil, se.NewServiceFailure(msg).WithCause(err)
	}
	return &md.ShareSession{Token: token, ExpiresAt: fromMillis(exp)}, nil
}

func (s *RedisShareStore) ListByOwner(ctx context.Context, ownerID string) ([]*md.ShareSession, error) {
	const errMsg = "error listing share sessions"
	clog := logging.WithFuncName().WithField("ownerID", ownerID)
	db := s.DB.WithContext(ctx)
	opt := redis.ZRangeBy{Min: strconv.FormatInt(toMillis(s.Now()), 10), Max: "+inf"}
	tokens, err := db.ZRevRangeByScore(ownerSharesKey(ownerID), opt).Result()
	if err != nil {
		clog.WithError(err).Error("error calling redis to get share tokens of owner")
		return nil, se.NewServiceFailure(errMsg).WithCause(err)
	}
	cmds := make([]*redis.StringStringMapCmd, len(tokens))
	if _, err := db.Pipelined(func(p redis.Pipeliner) error {
		for i, t := range tokens {
			cmds[i] = p.HGetAll(shareKey(t))
		}
		return nil
	}); err != nil {
		clog.WithError(err).Error("error calling redis to get share sessions of owner")
		return nil, se.NewServiceFailure(errMsg).WithCause(err)
	}
	sessions := make([]*md.ShareSession, 0, len(tokens))
	for i, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			continue
		}
		sess, err := toShareSession(tokens[i], m)
		if err != nil {
			clog.WithError(err).Error("error unmarshalling share session")
			return nil, se.NewServiceFailure(errMsg).WithCause(err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (s *RedisShareStore) Revoke(ctx context.Context, ownerID, token string) error {
	const errMsg = "error revoking share session"
	clog := logging.WithFuncName().WithField("ownerID", ownerID)
	db := s.DB.WithContext(ctx)
	key := shareKey(token)
	owner, err := db.HGet(key, fieldNameShareOwnerID).Result()
	if err == redis.Nil {
		return se.NewNotFound("share session not found")
	} else if err != nil {
		clog.WithError(err).Error("error calling redis to get share session owner")
		return se.NewServiceFailure(errMsg).WithCause(err)
	}
	if owner != ownerID {
		return se.NewForbidden("share session belongs to another user")
	}
	if _, err := db.TxPipelined(func(p redis.Pipeliner) error {
		p.Del(key, shareExpiryKey(token))
		p.ZRem(ownerSharesKey(ownerID), token)
		return nil
	}); err != nil {
		clog.WithError(err).Error("error calling redis to remove share session")
		return se.NewServiceFailure(errMsg).WithCause(err)
	}
	return nil
}

func toShareSession(token string, m map[string]string) (*md.ShareSession, error) {
	sess := &md.ShareSession{
		Token:   token,
		OwnerID: m[fieldNameShareOwnerID],
		PINHash: m[fieldNameSharePINHash],
	}
	exp, err := strconv.ParseInt(m[fieldNameShareExpiresAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad expiry: %w", err)
	}
	sess.ExpiresAt = fromMillis(exp)
	created, err := strconv.ParseInt(m[fieldNameShareCreatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad creation time: %w", err)
	}
	sess.CreationTime = fromMillis(created)
	if err := json.Unmarshal([]byte(m[fieldNameShareRecordIDs]), &sess.RecordIDs); err != nil {
		return nil, fmt.Errorf("bad record ids: %w", err)
	}
	return sess, nil
}

func shareKey(token string) string {
	return fmt.Sprintf(keyTmplShare, token)
}

func shareExpiryKey(token string) string {
	return fmt.Sprintf(keyTmplShareExpiry, token)
}

func ownerSharesKey(ownerID string) string {
	return fmt.Sprintf(keyTmplOwnerShares, ownerID)
}

func toMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

func fromMillis(ms int64) time.Time {
	return time.Unix(0, ms*int64(time.Millisecond)).UTC()
}
