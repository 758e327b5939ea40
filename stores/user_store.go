package stores

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis"
	"github.com/segmentio/ksuid"
	"golang.org/x/crypto/bcrypt"
	"healx.io/healx/common/logging"
	se "healx.io/healx/errors"
	md "healx.io/healx/models"
)

const (
	bcryptCost                int = 10
	minPasswdLen                  = 6
	fieldNameUserID               = "id"
	fieldNameUserEmail            = "email"
	fieldNameUserPasswdHash       = "hash"
	fieldNameUserCreationTime     = "creationTime"
	keyTmplUser                   = "user.%s"
	errMsgInvalidCredentials      = "invalid email or password"
	errMsgUserRegistrationFailure = "error registering user"
)

// UserStore vends operation to manage users and their credentials
type UserStore interface {
	// Register creates the user identified by u.Email with u.Passwd. u.ID and u.Hash are populated
	// on success.
	Register(ctx context.Context, u *md.User) error
	// Authenticate returns the user if the credentials match
	Authenticate(ctx context.Context, email, passwd string) (*md.User, error)
}

type RedisUserStore struct {
	DB *redis.Client
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *RedisUserStore) Register(ctx context.Context, u *md.User) error {
	u.Email = NormalizeEmail(u.Email)
	clog := logging.WithFuncName().WithField("email", u.Email)
	if !strings.Contains(u.Email, "@") {
		return se.NewBadInput("invalid email address")
	}
	if len(u.Passwd) < minPasswdLen {
		return se.NewBadInput(fmt.Sprintf("password must have at least %d characters", minPasswdLen))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Passwd), bcryptCost)
	if err != nil {
		clog.WithError(err).Error("error creating user password hash")
		return se.NewServiceFailure("error processing user password").WithCause(err)
	}
	kid, err := ksuid.NewRandom()
	if err != nil {
		clog.WithError(err).Error("error generating user id")
		return se.NewServiceFailure(errMsgUserRegistrationFailure).WithCause(err)
	}
	db, key := r.DB.WithContext(ctx), userKey(u.Email)
	// claim the email first so that concurrent registrations of the same email see a conflict
	claimed, err := db.HSetNX(key, fieldNameUserID, kid.String()).Result()
	if err != nil {
		clog.WithError(err).Error("error checking the existence of user")
		return se.NewServiceFailure(errMsgUserRegistrationFailure).WithCause(err)
	}
	if !claimed {
		return se.NewExisted("user had already existed")
	}
	if u.CreationTime.IsZero() {
		u.CreationTime = time.Now().UTC()
	}
	if _, err := db.HMSet(key, map[string]interface{}{
		fieldNameUserEmail:        u.Email,
		fieldNameUserPasswdHash:   hash,
		fieldNameUserCreationTime: toMillis(u.CreationTime),
	}).Result(); err != nil {
		clog.WithError(err).Error("error saving user details to redis")
		// release the claim so that the user can retry
		db.Del(key)
		return se.NewServiceFailure(errMsgUserRegistrationFailure).WithCause(err)
	}
	u.ID, u.Hash, u.Passwd = kid.String(), string(hash), ""
	clog.WithField("userID", u.ID).Info("registered user")
	return nil
}

func (r *RedisUserStore) Authenticate(ctx context.Context, email, passwd string) (*md.User, error) {
	email = NormalizeEmail(email)
	clog := logging.WithFuncName().WithField("email", email)
	m, err := r.DB.WithContext(ctx).HGetAll(userKey(email)).Result()
	if err != nil {
		clog.WithError(err).Error("error getting user details from redis")
		return nil, se.NewServiceFailure("error authenticating user").WithCause(err)
	}
	hash := m[fieldNameUserPasswdHash]
	// a half registered user has no hash yet and can not log in
	if len(m) == 0 || hash == "" {
		return nil, se.NewUnauthorized(errMsgInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(passwd)); err != nil {
		return nil, se.NewUnauthorized(errMsgInvalidCredentials)
	}
	u := &md.User{ID: m[fieldNameUserID], Email: m[fieldNameUserEmail], Hash: hash}
	if ms, err := strconv.ParseInt(m[fieldNameUserCreationTime], 10, 64); err == nil {
		u.CreationTime = fromMillis(ms)
	}
	return u, nil
}

func userKey(email string) string {
	return fmt.Sprintf(keyTmplUser, email)
}
