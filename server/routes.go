package main

import (
	"github.com/julienschmidt/httprouter"
	mw "healx.io/healx/common/middleware"
)

// set up routes
func (s *healxServer) SetupMux() {
	r := httprouter.New()
	public := func(h httprouter.Handle) httprouter.Handle {
		return mw.Chain(h, mw.RequestLogger(), mw.PanicRecoverer())
	}
	// identity gated routes answer 401 without a valid login session
	private := func(h httprouter.Handle) httprouter.Handle {
		return mw.Chain(h, s.HandleAuthN, mw.RequestLogger(), mw.PanicRecoverer())
	}
	// user related
	r.POST("/register", public(s.HandleAuthRegister()))
	r.POST("/login", public(s.HandleAuthLogin()))
	r.POST("/logout", public(s.HandleAuthLogout()))
	r.GET("/dashboard", private(s.HandleTaskGetDashboard()))
	// records
	r.POST("/upload", private(s.HandleTaskUploadRecord()))
	r.GET("/records", private(s.HandleTaskListRecords()))
	r.GET("/viewfile/:id", private(s.HandleTaskViewFile()))
	r.DELETE("/records/:id", private(s.HandleTaskDeleteRecord()))
	// share links
	r.POST("/shares", private(s.HandleTaskCreateShare()))
	r.GET("/shares", private(s.HandleTaskListShares()))
	r.DELETE("/shares/:token", private(s.HandleTaskRevokeShare()))
	r.GET("/sharePage/:token", public(s.HandleTaskGetSharePage()))
	r.POST("/sharePage/:token", public(s.HandleTaskSubmitSharePIN()))
	// settings
	r.GET("/settings/patients", private(s.HandleTaskListPatients()))
	r.POST("/settings/patients", private(s.HandleTaskAddPatient()))
	r.GET("/settings/profile/:patient", private(s.HandleTaskGetProfile()))
	r.PUT("/settings/profile/:patient", private(s.HandleTaskSaveProfile()))
	r.GET("/settings/health/:patient", private(s.HandleTaskGetHealth()))
	r.PUT("/settings/health/:patient", private(s.HandleTaskSaveHealth()))

	s.Router = r
}
