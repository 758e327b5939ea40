package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"healx.io/healx/common/logging"
	cst "healx.io/healx/constants"
	se "healx.io/healx/errors"
	md "healx.io/healx/models"
)

const maxJSONBodySize = 1 << 20

type ctxKey string

const ctxKeyUser ctxKey = "user"

type credentials struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type userView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (s *healxServer) HandleAuthRegister() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var c credentials
		if err := readJSON(w, r, &c); err != nil {
			writeErr(w, err, clog)
			return
		}
		if c.Password != c.ConfirmPassword {
			writeErr(w, se.NewBadInput("passwords do not match"), clog)
			return
		}
		u := &md.User{Email: c.Email, Passwd: c.Password}
		if err := s.Users.Register(r.Context(), u); err != nil {
			writeErr(w, err, clog)
			return
		}
		// a registered user is logged in right away
		if err := s.login(w, r, u); err != nil {
			writeErr(w, err, clog)
			return
		}
		writeJSON(w, http.StatusCreated, userView{ID: u.ID, Email: u.Email}, clog)
	}
}

func (s *healxServer) HandleAuthLogin() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var c credentials
		if err := readJSON(w, r, &c); err != nil {
			writeErr(w, err, clog)
			return
		}
		u, err := s.Users.Authenticate(r.Context(), c.Email, c.Password)
		if err != nil {
			writeErr(w, err, clog)
			return
		}
		if err := s.login(w, r, u); err != nil {
			writeErr(w, err, clog)
			return
		}
		writeJSON(w, http.StatusOK, userView{ID: u.ID, Email: u.Email}, clog)
	}
}

func (s *healxServer) login(w http.ResponseWriter, r *http.Request, u *md.User) error {
	// an undecodable cookie still yields a fresh session, which is overwritten here
	sess, _ := s.Sessions.Get(r, cst.SessionCookieName)
	// the id of a session carried in before login is never bound to the new identity
	if err := s.Sessions.Renew(r, sess); err != nil {
		return se.NewServiceFailure("error renewing login session").WithCause(err)
	}
	sess.Values[cst.SessionKeyUserID] = u.ID
	sess.Values[cst.SessionKeyEmail] = u.Email
	if err := sess.Save(r, w); err != nil {
		return se.NewServiceFailure("error saving login session").WithCause(err)
	}
	return nil
}

func (s *healxServer) HandleAuthLogout() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sess, err := s.Sessions.Get(r, cst.SessionCookieName)
		if err == nil && !sess.IsNew {
			sess.Options.MaxAge = -1
			if err := sess.Save(r, w); err != nil {
				writeErr(w, se.NewServiceFailure("error ending login session").WithCause(err), clog)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleAuthN is a middleware for authentication. The identity of the login session is put into
// the request context; requests without one are answered with 401.
func (s *healxServer) HandleAuthN(h httprouter.Handle) httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sess, err := s.Sessions.Get(r, cst.SessionCookieName)
		if err != nil || sess.IsNew {
			writeErr(w, se.NewUnauthorized("login required"), clog)
			return
		}
		id, _ := sess.Values[cst.SessionKeyUserID].(string)
		email, _ := sess.Values[cst.SessionKeyEmail].(string)
		if id == "" || email == "" {
			writeErr(w, se.NewUnauthorized("login required"), clog)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUser, &md.User{ID: id, Email: email})
		h(w, r.WithContext(ctx), ps)
	}
}

// userFrom returns the identity put into the context by HandleAuthN, or nil for anonymous requests
func userFrom(r *http.Request) *md.User {
	u, _ := r.Context().Value(ctxKeyUser).(*md.User)
	return u
}

type dashboardView struct {
	User     userView       `json:"user"`
	Patients []string       `json:"patients"`
	Counts   map[string]int `json:"counts"`
	Total    int            `json:"total"`
}

// -------------- utils --------------
type errView struct {
	Error string `json:"error"`
}

func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	d := json.NewDecoder(r.Body)
	if err := d.Decode(v); err != nil {
		if strings.Contains(err.Error(), cst.ErrMsgRequestBodyTooLarge) {
			return se.NewOversized(fmt.Sprintf("request oversized. Request body must be under %d kibibyte",
				maxJSONBodySize/1024)).WithCause(err)
		}
		return se.NewBadInput("error parsing request body").WithCause(err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}, log *logrus.Entry) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("error writing response body")
	}
}

// writeErr answers with the status and message of err. Messages of errors not raised by healx
// components are not surfaced to clients.
func writeErr(w http.ResponseWriter, err error, log *logrus.Entry) {
	code, msg := http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	if e, ok := err.(*se.Err); ok {
		code, msg = e.StatusCode(), e.Error()
		if code >= http.StatusInternalServerError {
			log.WithError(err).Error(e.Trace())
		}
	} else {
		log.WithError(err).Error("unexpected error")
	}
	writeJSON(w, code, errView{Error: msg}, log)
}
