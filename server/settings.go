package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"healx.io/healx/common/logging"
	md "healx.io/healx/models"
)

type newPatient struct {
	Name string `json:"name"`
}

func (s *healxServer) HandleTaskListPatients() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		patients, err := s.Settings.Patients(r.Context(), userFrom(r).Email)
		if err != nil {
			writeErr(w, err, clog)
			return
		}
		writeJSON(w, http.StatusOK, patients, clog)
	}
}

func (s *healxServer) HandleTaskAddPatient() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var p newPatient
		if err := readJSON(w, r, &p); err != nil {
			writeErr(w, err, clog)
			return
		}
		patients, err := s.Settings.AddPatient(r.Context(), userFrom(r).Email, p.Name)
		if err != nil {
			writeErr(w, err, clog)
			return
		}
		writeJSON(w, http.StatusCreated, patients, clog)
	}
}

func (s *healxServer) HandleTaskGetProfile() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		p, err := s.Settings.Profile(r.Context(), userFrom(r).Email, ps.ByName("patient"))
		if err != nil {
			writeErr(w, err, clog)
			return
		}
		writeJSON(w, http.StatusOK, p, clog)
	}
}

func (s *healxServer) HandleTaskSaveProfile() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var p md.Profile
		if err := readJSON(w, r, &p); err != nil {
			writeErr(w, err, clog)
			return
		}
		if err := s.Settings.SaveProfile(r.Context(), userFrom(r).Email, ps.ByName("patient"), &p); err != nil {
			writeErr(w, err, clog)
			return
		}
		writeJSON(w, http.StatusOK, &p, clog)
	}
}

func (s *healxServer) HandleTaskGetHealth() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		h, err := s.Settings.Health(r.Context(), userFrom(r).Email, ps.ByName("patient"))
		if err != nil {
			writeErr(w, err, clog)
			return
		}
		writeJSON(w, http.StatusOK, h, clog)
	}
}

func (s *healxServer) HandleTaskSaveHealth() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var h md.Health
		if err := readJSON(w, r, &h); err != nil {
			writeErr(w, err, clog)
			return
		}
		if err := s.Settings.SaveHealth(r.Context(), userFrom(r).Email, ps.ByName("patient"), &h); err != nil {
			writeErr(w, err, clog)
			return
		}
		writeJSON(w, http.StatusOK, &h, clog)
	}
}
