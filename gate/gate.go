// Package gate decides whether an anonymous visitor of a share link may see the shared records,
// and assembles the records once access is granted.
//
// A Visit starts Resolving and ends up in one of
//
//	PINCheck -> Granted   session found, unexpired and PIN protected
//	Granted               session found, unexpired and not PIN protected
//	Denied                invalid link, expired link or transient lookup failure
//
// Denied is terminal. A wrong PIN leaves the visit in PINCheck.
package gate

import (
	"context"
	"strings"
	"time"

	"github.com/bluele/gcache"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"healx.io/healx/common/logging"
	se "healx.io/healx/errors"
	md "healx.io/healx/models"
	"healx.io/healx/payload"
	"healx.io/healx/stores"
)

type State int

const (
	Resolving State = iota
	PINCheck
	Granted
	Denied
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case PINCheck:
		return "pinCheck"
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

type DenyReason string

const (
	InvalidLink DenyReason = "invalidLink"
	Expired     DenyReason = "expired"
	Transient   DenyReason = "transient"
)

const (
	pinHashCost = 10
	// sessions are cached briefly so that revocations on other instances are picked up soon
	defaultCacheTTL = time.Minute
)

// Gate resolves share tokens into visits
type Gate struct {
	Shares  stores.ShareStore
	Records stores.RecordStore
	Cipher  *payload.Cipher
	// Cache holds *md.ShareSession by token. Nil disables caching.
	Cache    gcache.Cache
	CacheTTL time.Duration
	// PoolSize bounds the number of concurrent record fetches of one visit
	PoolSize int
	Now      func() time.Time
}

func New(shares stores.ShareStore, records stores.RecordStore, c *payload.Cipher, cacheSize, poolSize int) *Gate {
	g := &Gate{
		Shares:   shares,
		Records:  records,
		Cipher:   c,
		CacheTTL: defaultCacheTTL,
		PoolSize: poolSize,
		Now:      time.Now,
	}
	if cacheSize > 0 {
		g.Cache = gcache.New(cacheSize).LRU().Build()
	}
	return g
}

// Visit is what one visitor of a share link is allowed to do
type Visit struct {
	gate    *Gate
	token   string
	state   State
	reason  DenyReason
	cause   error
	session *md.ShareSession
}

func (v *Visit) State() State {
	return v.state
}

// Reason is empty unless the visit is Denied
func (v *Visit) Reason() DenyReason {
	return v.reason
}

// Session is nil unless the session had been found and is not expired
func (v *Visit) Session() *md.ShareSession {
	return v.session
}

// Err describes why the visit is denied. It is nil for visits that are not Denied.
func (v *Visit) Err() error {
	if v.state != Denied {
		return nil
	}
	switch v.reason {
	case InvalidLink:
		return se.NewNotFound("invalid or expired share link")
	case Expired:
		return se.NewExpired("this share link has expired")
	default:
		return se.NewServiceFailure("failed to load session, please try again later").WithCause(v.cause)
	}
}

// Resolve looks the session of token up. Expiry is checked before anything else so that an
// expired session is denied regardless of its PIN.
func (g *Gate) Resolve(ctx context.Context, token string) *Visit {
	v := &Visit{gate: g, token: token, state: Resolving}
	clog := logging.WithFuncName()
	if strings.TrimSpace(token) == "" {
		return v.deny(InvalidLink, nil)
	}
	sess, err := g.session(ctx, token)
	switch {
	case se.Is(err, se.ErrCodeNotFound):
		return v.deny(InvalidLink, nil)
	case err != nil:
		clog.WithError(err).Error("error resolving share session")
		return v.deny(Transient, err)
	case sess.Expired(g.now()):
		return v.deny(Expired, nil)
	}
	v.session = sess
	if sess.PINRequired() {
		v.state = PINCheck
	} else {
		v.state = Granted
	}
	return v
}

func (v *Visit) deny(reason DenyReason, cause error) *Visit {
	v.state, v.reason, v.cause = Denied, reason, cause
	return v
}

// SubmitPIN grants the visit if pin matches the session PIN exactly. A mismatch is reported as
// ErrCodeForbidden and the visit stays in PINCheck so that the visitor can try again.
func (v *Visit) SubmitPIN(pin string) error {
	if v.state != PINCheck {
		return se.NewBadInput("no PIN is expected at state " + v.state.String())
	}
	if strings.TrimSpace(pin) == "" {
		return se.NewBadInput("please enter the PIN")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(v.session.PINHash), []byte(pin)); err != nil {
		return se.NewForbidden("incorrect PIN, please try again")
	}
	v.state = Granted
	return nil
}

// Forget drops the cached session of token, e.g. after the session is revoked
func (g *Gate) Forget(token string) {
	if g.Cache != nil {
		g.Cache.Remove(token)
	}
}

func (g *Gate) session(ctx context.Context, token string) (*md.ShareSession, error) {
	if g.Cache != nil {
		if cached, err := g.Cache.Get(token); err == nil {
			return cached.(*md.ShareSession), nil
		} else if err != gcache.KeyNotFoundError {
			log.WithError(err).Warn("error reading share session cache")
		}
	}
	sess, err := g.Shares.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if g.Cache != nil {
		if err := g.Cache.SetWithExpire(token, sess, g.CacheTTL); err != nil {
			log.WithError(err).Warn("error caching share session")
		}
	}
	return sess, nil
}

func (g *Gate) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

// HashPIN hashes a share link PIN for storage
func HashPIN(pin string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pin), pinHashCost)
	if err != nil {
		return "", se.NewServiceFailure("error processing PIN").WithCause(err)
	}
	return string(h), nil
}
