package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/segmentio/ksuid"
	log "github.com/sirupsen/logrus"
	"healx.io/healx/common/logging"
	cst "healx.io/healx/constants"
	se "healx.io/healx/errors"
	"healx.io/healx/listing"
	md "healx.io/healx/models"
)

// multipart parts above this size are spilled to temp files
const uploadMemMaxByte = 1 << 20

func (s *healxServer) HandleTaskGetDashboard() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		u := userFrom(r)
		records, err := s.Records.ListByOwner(r.Context(), u.ID)
		if err != nil {
			writeErr(w, err, clog)
			return
		}
		patients, err := s.Settings.Patients(r.Context(), u.Email)
		if err != nil {
			writeErr(w, err, clog)
			return
		}
		// labels only found on records are listed too
		known := listing.NewSelection(patients...)
		for _, p := range listing.Patients(records) {
			if !known.Has(p) {
				patients = append(patients, p)
			}
		}
		counts := make(map[string]int, len(patients))
		for _, p := range patients {
			counts[p] = listing.CountForPatient(records, p)
		}
		writeJSON(w, http.StatusOK, dashboardView{
			User:     userView{ID: u.ID, Email: u.Email},
			Patients: patients,
			Counts:   counts,
			Total:    len(records),
		}, clog)
	}
}

// HandleTaskUploadRecord encrypts the uploaded file as a data URL and saves it as a new record
func (s *healxServer) HandleTaskUploadRecord() httprouter.Handle {
	clog := logging.WithFuncName().WithField("httpMethod", http.MethodPost)
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		u := userFrom(r)
		ulog := clog.WithField("ownerID", u.ID)
		// limit request size and parse request form
		r.Body = http.MaxBytesReader(w, r.Body, s.UploadSizeMaxByte)
		if err := r.ParseMultipartForm(uploadMemMaxByte); err != nil {
			if strings.Contains(err.Error(), cst.ErrMsgRequestBodyTooLarge) {
				writeErr(w, se.NewOversized(fmt.Sprintf("request oversized. Request size must be under %.1f mebibyte",
					float64(s.UploadSizeMaxByte)/(1024.*1024.))).WithCause(err), ulog)
				return
			}
			writeErr(w, se.NewBadInput("error parsing form").WithCause(err), ulog)
			return
		}
		defer r.MultipartForm.RemoveAll()
		rec, err := s.buildRecord(r, u)
		if err != nil {
			writeErr(w, err, ulog)
			return
		}
		if err := s.Records.Create(r.Context(), rec); err != nil {
			writeErr(w, err, ulog)
			return
		}
		ulog.WithFields(log.Fields{"recordID": rec.ID, "filename": rec.Filename}).Info("record uploaded")
		writeJSON(w, http.StatusCreated, rec.View(), ulog)
	}
}

// buildRecord validates the upload form before anything is stored
func (s *healxServer) buildRecord(r *http.Request, u *md.User) (*md.Record, error) {
	f, fh, err := r.FormFile("file")
	if err != nil {
		return nil, se.NewBadInput("please select a file")
	}
	defer f.Close()
	reportType := strings.TrimSpace(r.FormValue("reportType"))
	if reportType == "" {
		return nil, se.NewBadInput("please enter the report type")
	}
	reportDate := strings.TrimSpace(r.FormValue("reportDate"))
	if reportDate == "" {
		return nil, se.NewBadInput("please enter the date of report")
	}
	patient := strings.TrimSpace(r.FormValue("patient"))
	if patient == "" {
		patient = cst.PatientSelf
	}
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, se.NewBadInput("error reading uploaded file").WithCause(err)
	}
	if len(content) == 0 {
		return nil, se.NewBadInput("uploaded file is empty")
	}
	dataURL := toDataURL(fh.Header.Get("Content-Type"), content)
	kid, err := ksuid.NewRandom()
	if err != nil {
		return nil, se.NewServiceFailure("error generating record id").WithCause(err)
	}
	oc, err := s.Cipher.ForOwner(u.ID)
	if err != nil {
		return nil, err
	}
	sealed, err := oc.Encrypt(dataURL)
	if err != nil {
		return nil, err
	}
	return &md.Record{
		ID:           kid.String(),
		OwnerID:      u.ID,
		Filename:     fh.Filename,
		Payload:      sealed,
		ReportType:   reportType,
		Patient:      patient,
		ReportDate:   reportDate,
		CreationTime: time.Now().UTC(),
		Encrypted:    true,
	}, nil
}

// toDataURL falls back to sniffing the content when the client sent no usable media type
func toDataURL(contentType string, content []byte) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || mt == "application/octet-stream" {
		mt, _, _ = mime.ParseMediaType(http.DetectContentType(content))
	}
	return fmt.Sprintf("data:%s;base64,%s", mt, base64.StdEncoding.EncodeToString(content))
}

// fromDataURL splits a base64 data URL into its media type and content
func fromDataURL(dataURL string) (string, []byte, error) {
	const prefix = "data:"
	i := strings.Index(dataURL, ",")
	if !strings.HasPrefix(dataURL, prefix) || i < 0 {
		return "", nil, se.NewDecryptionFailed("payload is not a data URL")
	}
	meta := strings.TrimSuffix(dataURL[len(prefix):i], ";base64")
	content, err := base64.StdEncoding.DecodeString(dataURL[i+1:])
	if err != nil {
		return "", nil, se.NewDecryptionFailed("payload is not base64 encoded").WithCause(err)
	}
	return meta, content, nil
}

type recordItem struct {
	md.RecordView
	Selected bool `json:"selected"`
}

type recordsView struct {
	Records     []recordItem  `json:"records"`
	Patients    []string      `json:"patients"`
	Selected    []string      `json:"selected"`
	AllSelected bool          `json:"allSelected"`
	Order       listing.Order `json:"order"`
}

// HandleTaskListRecords lists the records of the user. Query parameters: q (search text), patient
// (label or "all"), order (asc or desc), selected (repeated record ids) and toggleAll.
func (s *healxServer) HandleTaskListRecords() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		u, qs := userFrom(r), r.URL.Query()
		order, err := listing.ParseOrder(qs.Get("order"))
		if err != nil {
			writeErr(w, err, clog)
			return
		}
		records, err := s.Records.ListByOwner(r.Context(), u.ID)
		if err != nil {
			writeErr(w, err, clog)
			return
		}
		view := listing.Filter(records, listing.Query{Text: qs.Get("q"), Patient: qs.Get("patient")})
		listing.Sort(view, order)
		sel := listing.NewSelection(qs["selected"]...)
		if qs.Get("toggleAll") == "true" {
			sel.ToggleAll(view)
		}
		items := make([]recordItem, len(view))
		for i, rec := range view {
			items[i] = recordItem{RecordView: rec.View(), Selected: sel.Has(rec.ID)}
		}
		writeJSON(w, http.StatusOK, recordsView{
			Records:     items,
			Patients:    listing.Patients(records),
			Selected:    sel.IDs(),
			AllSelected: sel.AllSelected(view),
			Order:       order,
		}, clog)
	}
}

// HandleTaskViewFile returns the decrypted payload of one record of the user. With download=true
// the raw file is sent instead.
func (s *healxServer) HandleTaskViewFile() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		u, id := userFrom(r), ps.ByName("id")
		flog := clog.WithFields(log.Fields{"recordID": id, "ownerID": u.ID})
		rec, err := s.Records.Get(r.Context(), id)
		if err != nil {
			writeErr(w, err, flog)
			return
		}
		// records of others are indistinguishable from missing ones
		if !rec.OwnedBy(u) {
			writeErr(w, se.NewNotFound(fmt.Sprintf("record %s not found", id)), flog)
			return
		}
		sr := &md.SharedRecord{RecordView: rec.View(), Preview: md.PreviewNone}
		oc, err := s.Cipher.ForOwner(u.ID)
		if err != nil {
			writeErr(w, err, flog)
			return
		}
		if plain, err := oc.Decrypt(rec.Payload); err != nil {
			flog.WithError(err).Warn("record payload not decryptable")
		} else {
			sr.Payload, sr.Preview = &plain, md.PreviewKindOf(plain)
		}
		if r.URL.Query().Get("download") != "true" {
			writeJSON(w, http.StatusOK, sr, flog)
			return
		}
		if sr.Payload == nil {
			writeErr(w, se.NewDecryptionFailed("preview not available"), flog)
			return
		}
		mt, content, err := fromDataURL(*sr.Payload)
		if err != nil {
			writeErr(w, err, flog)
			return
		}
		// header to force download behavior on browser clients
		headers := w.Header()
		headers.Set("Content-Type", mt)
		headers.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": rec.Filename}))
		w.WriteHeader(http.StatusOK)
		if n, err := io.Copy(w, bytes.NewReader(content)); err != nil {
			flog.WithError(err).Error("error sending file to requester")
		} else {
			flog.WithField("bytesWritten", n).Info("file sent to requester successfully")
		}
	}
}

func (s *healxServer) HandleTaskDeleteRecord() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		u, id := userFrom(r), ps.ByName("id")
		if err := s.Records.Delete(r.Context(), u.ID, id); err != nil {
			if se.Is(err, se.ErrCodeForbidden) {
				err = se.NewNotFound(fmt.Sprintf("record %s not found", id))
			}
			writeErr(w, err, clog.WithField("recordID", id))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
