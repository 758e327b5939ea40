package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"healx.io/healx/common/logging"
	se "healx.io/healx/errors"
	"healx.io/healx/gate"
	"healx.io/healx/listing"
	md "healx.io/healx/models"
)

type shareView struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	RecordIDs []string  `json:"recordIds"`
	CreatedAt time.Time `json:"createdAt"`
}

func toShareView(s *md.ShareSession) shareView {
	return shareView{
		Token:     s.Token,
		URL:       fmt.Sprintf("/sharePage/%s", s.Token),
		ExpiresAt: s.ExpiresAt,
		RecordIDs: s.RecordIDs,
		CreatedAt: s.CreationTime,
	}
}

// sharePageView is what the visitor of a share link sees at each state of the visit
type sharePageView struct {
	State     string             `json:"state"`
	Reason    gate.DenyReason    `json:"reason,omitempty"`
	Error     string             `json:"error,omitempty"`
	ExpiresAt *time.Time         `json:"expiresAt,omitempty"`
	Records   []*md.SharedRecord `json:"records,omitempty"`
}

// newSharePageView fills in the expiry of visits which are not denied
func newSharePageView(v *gate.Visit) sharePageView {
	view := sharePageView{State: v.State().String()}
	if sess := v.Session(); sess != nil {
		view.ExpiresAt = &sess.ExpiresAt
	}
	return view
}

type pinAttempt struct {
	PIN string `json:"pin"`
}

func (s *healxServer) HandleTaskCreateShare() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var req listing.ShareRequest
		if err := readJSON(w, r, &req); err != nil {
			writeErr(w, err, clog)
			return
		}
		sess, err := s.Gate.Issue(r.Context(), userFrom(r), &req)
		if err != nil {
			writeErr(w, err, clog)
			return
		}
		writeJSON(w, http.StatusCreated, toShareView(sess), clog)
	}
}

func (s *healxServer) HandleTaskListShares() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sessions, err := s.Shares.ListByOwner(r.Context(), userFrom(r).ID)
		if err != nil {
			writeErr(w, err, clog)
			return
		}
		views := make([]shareView, len(sessions))
		for i, sess := range sessions {
			views[i] = toShareView(sess)
		}
		writeJSON(w, http.StatusOK, views, clog)
	}
}

func (s *healxServer) HandleTaskRevokeShare() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if err := s.Gate.Revoke(r.Context(), userFrom(r), ps.ByName("token")); err != nil {
			writeErr(w, err, clog)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleTaskGetSharePage resolves a share link. Links without a PIN are granted right away and
// carry the shared records.
func (s *healxServer) HandleTaskGetSharePage() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		v := s.Gate.Resolve(r.Context(), ps.ByName("token"))
		switch v.State() {
		case gate.PINCheck:
			writeJSON(w, http.StatusOK, newSharePageView(v), clog)
		case gate.Granted:
			s.writeSharedRecords(w, r, v)
		default:
			writeDenied(w, v)
		}
	}
}

// HandleTaskSubmitSharePIN checks a PIN attempt. A wrong PIN is answered with the error and the
// pinCheck state so that the visitor can try again.
func (s *healxServer) HandleTaskSubmitSharePIN() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var a pinAttempt
		if err := readJSON(w, r, &a); err != nil {
			writeErr(w, err, clog)
			return
		}
		v := s.Gate.Resolve(r.Context(), ps.ByName("token"))
		switch v.State() {
		case gate.Denied:
			writeDenied(w, v)
			return
		case gate.PINCheck:
			if err := v.SubmitPIN(a.PIN); err != nil {
				code := http.StatusInternalServerError
				if e, ok := err.(*se.Err); ok {
					code = e.StatusCode()
				}
				view := newSharePageView(v)
				view.Error = err.Error()
				writeJSON(w, code, view, clog)
				return
			}
		}
		s.writeSharedRecords(w, r, v)
	}
}

func (s *healxServer) writeSharedRecords(w http.ResponseWriter, r *http.Request, v *gate.Visit) {
	clog := logging.WithFuncName()
	records, err := v.Records(r.Context())
	if err != nil {
		writeErr(w, err, clog)
		return
	}
	view := newSharePageView(v)
	view.Records = records
	if len(records) == 0 {
		view.Error = "no records available in this shared session"
	}
	writeJSON(w, http.StatusOK, view, clog)
}

func writeDenied(w http.ResponseWriter, v *gate.Visit) {
	clog := logging.WithFuncName().WithField("reason", v.Reason())
	code := http.StatusInternalServerError
	err := v.Err()
	if e, ok := err.(*se.Err); ok {
		code = e.StatusCode()
		if code >= http.StatusInternalServerError {
			clog.WithError(err).Error(e.Trace())
		}
	}
	writeJSON(w, code, sharePageView{State: v.State().String(), Reason: v.Reason(), Error: err.Error()}, clog)
}
