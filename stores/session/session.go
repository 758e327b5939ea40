// Package session provides a Redis-backed github.com/gorilla/sessions.Store. The session cookie
// carries only a signed session id while session values stay in Redis.
package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/segmentio/ksuid"
	"healx.io/healx/common/logging"
)

const keyTmplSession = "session.%s"

// Redistore is a github.com/gorilla/sessions.Store
type Redistore struct {
	DB      *redis.Client
	Codecs  []securecookie.Codec
	Options *sessions.Options
	ser     securecookie.GobEncoder
}

// NewRedistore creates a store whose sessions live for maxAge. keyPairs are passed to
// securecookie.CodecsFromPairs to sign, and optionally encrypt, the session id cookie.
func NewRedistore(db *redis.Client, maxAge time.Duration, keyPairs ...[]byte) *Redistore {
	codecs := securecookie.CodecsFromPairs(keyPairs...)
	age := int(maxAge / time.Second)
	for _, c := range codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			sc.MaxAge(age)
		}
	}
	return &Redistore{
		DB:     db,
		Codecs: codecs,
		Options: &sessions.Options{
			Path:     "/",
			MaxAge:   age,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
	}
}

// Get returns a session cached in the request registry, loading it from Redis at first use
func (s *Redistore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New returns the session of the request cookie, or a new session if there is no valid one.
// New never returns a nil session.
func (s *Redistore) New(r *http.Request, name string) (*sessions.Session, error) {
	sess := sessions.NewSession(s, name)
	opts := *s.Options
	sess.Options = &opts
	sess.IsNew = true
	c, err := r.Cookie(name)
	if err != nil {
		return sess, nil
	}
	if err := securecookie.DecodeMulti(name, c.Value, &sess.ID, s.Codecs...); err != nil {
		return sess, err
	}
	found, err := s.load(r.Context(), sess)
	if err != nil {
		return sess, err
	}
	sess.IsNew = !found
	return sess, nil
}

// Save persists the session values to Redis and writes the session id cookie. A non-positive
// MaxAge deletes the session.
func (s *Redistore) Save(r *http.Request, w http.ResponseWriter, sess *sessions.Session) error {
	clog := logging.WithFuncName()
	if sess.Options.MaxAge <= 0 {
		if sess.ID != "" {
			if err := s.DB.WithContext(r.Context()).Del(sessionKey(sess.ID)).Err(); err != nil {
				clog.WithError(err).Error("error deleting session from redis")
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(sess.Name(), "", sess.Options))
		return nil
	}
	if sess.ID == "" {
		kid, err := ksuid.NewRandom()
		if err != nil {
			return err
		}
		sess.ID = kid.String()
	}
	b, err := s.ser.Serialize(sess.Values)
	if err != nil {
		clog.WithError(err).Error("error serializing session values")
		return err
	}
	ttl := time.Duration(sess.Options.MaxAge) * time.Second
	if err := s.DB.WithContext(r.Context()).Set(sessionKey(sess.ID), b, ttl).Err(); err != nil {
		clog.WithError(err).Error("error saving session to redis")
		return err
	}
	encoded, err := securecookie.EncodeMulti(sess.Name(), sess.ID, s.Codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(sess.Name(), encoded, sess.Options))
	return nil
}

// Renew drops the values stored for sess and clears its id, so that the next Save issues a new
// session id. Call it whenever the identity bound to the session changes.
func (s *Redistore) Renew(r *http.Request, sess *sessions.Session) error {
	if sess.ID != "" {
		if err := s.DB.WithContext(r.Context()).Del(sessionKey(sess.ID)).Err(); err != nil {
			logging.WithFuncName().WithError(err).Error("error deleting renewed session from redis")
			return err
		}
	}
	sess.ID = ""
	sess.IsNew = true
	sess.Values = make(map[interface{}]interface{})
	return nil
}

func (s *Redistore) load(ctx context.Context, sess *sessions.Session) (bool, error) {
	b, err := s.DB.WithContext(ctx).Get(sessionKey(sess.ID)).Bytes()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, s.ser.Deserialize(b, &sess.Values)
}

func sessionKey(id string) string {
	return fmt.Sprintf(keyTmplSession, id)
}
