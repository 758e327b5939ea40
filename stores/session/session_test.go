package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSessionName = "healx"

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Redistore) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	db := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { db.Close() })
	return mr, NewRedistore(db, time.Hour, []byte("0123456789abcdef0123456789abcdef"))
}

// withCookies returns a new request carrying the cookies set on w
func withCookies(w *httptest.ResponseRecorder) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	for _, c := range w.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestRedistoreRoundTrip(t *testing.T) {
	mr, s := newTestStore(t)
	w, r := httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", nil)

	sess, err := s.New(r, testSessionName)
	require.NoError(t, err)
	assert.True(t, sess.IsNew)
	sess.Values["userID"] = "u1"
	require.NoError(t, s.Save(r, w, sess))
	require.NotEmpty(t, sess.ID)
	assert.True(t, mr.Exists(sessionKey(sess.ID)), "session values not kept in redis")
	assert.Equal(t, time.Hour, mr.TTL(sessionKey(sess.ID)))

	loaded, err := s.Get(withCookies(w), testSessionName)
	require.NoError(t, err)
	assert.False(t, loaded.IsNew)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "u1", loaded.Values["userID"])
}

func TestRedistoreDelete(t *testing.T) {
	mr, s := newTestStore(t)
	w, r := httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", nil)
	sess, _ := s.New(r, testSessionName)
	sess.Values["userID"] = "u1"
	require.NoError(t, s.Save(r, w, sess))

	r = withCookies(w)
	sess, err := s.Get(r, testSessionName)
	require.NoError(t, err)
	sess.Options.MaxAge = -1
	w = httptest.NewRecorder()
	require.NoError(t, s.Save(r, w, sess))
	assert.False(t, mr.Exists(sessionKey(sess.ID)), "session not removed from redis")

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].MaxAge < 0, "session cookie not cleared")
}

func TestRedistoreTamperedCookie(t *testing.T) {
	_, s := newTestStore(t)
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	r.AddCookie(&http.Cookie{Name: testSessionName, Value: "not-a-signed-value"})
	sess, err := s.New(r, testSessionName)
	assert.Error(t, err)
	require.NotNil(t, sess, "New must never return a nil session")
	assert.True(t, sess.IsNew)
}

func TestRedistoreUnknownSession(t *testing.T) {
	mr, s := newTestStore(t)
	w, r := httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", nil)
	sess, _ := s.New(r, testSessionName)
	require.NoError(t, s.Save(r, w, sess))
	mr.FlushAll()
	loaded, err := s.New(withCookies(w), testSessionName)
	require.NoError(t, err)
	assert.True(t, loaded.IsNew, "session gone from redis must be new")
	assert.Empty(t, loaded.Values)
}

func TestRedistoreRenew(t *testing.T) {
	mr, s := newTestStore(t)
	w, r := httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", nil)
	sess, _ := s.New(r, testSessionName)
	sess.Values["userID"] = "mallory"
	require.NoError(t, s.Save(r, w, sess))
	oldID := sess.ID

	r = withCookies(w)
	sess, err := s.Get(r, testSessionName)
	require.NoError(t, err)
	require.NoError(t, s.Renew(r, sess))
	assert.Empty(t, sess.ID)
	assert.Empty(t, sess.Values, "values of the old session must not carry over")
	assert.False(t, mr.Exists(sessionKey(oldID)), "old session not removed from redis")

	sess.Values["userID"] = "victim"
	w = httptest.NewRecorder()
	require.NoError(t, s.Save(r, w, sess))
	assert.NotEqual(t, oldID, sess.ID, "renewed session must get a new id")

	stale := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	stale.AddCookie(r.Cookies()[0])
	loaded, err := s.New(stale, testSessionName)
	require.NoError(t, err)
	assert.True(t, loaded.IsNew, "old session id must not resolve after renewal")
}
