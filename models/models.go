package models

import (
	"strings"
	"time"

	cst "healx.io/healx/constants"
)

/*
 Application layer data models.
*/

// ReportDateLayout is the calendar date layout of Record.ReportDate
const ReportDateLayout = "2006-01-02"

// Record is a single uploaded medical document. Payload holds the encrypted data URL of the
// uploaded file and is never returned to clients as-is.
type Record struct {
	ID           string    `json:"_id"`
	Rev          string    `json:"_rev,omitempty"`
	OwnerID      string    `json:"owner"`
	Filename     string    `json:"filename"`
	Payload      string    `json:"payload"`
	ReportType   string    `json:"reportType"`
	Patient      string    `json:"patient"`
	ReportDate   string    `json:"reportDate"`
	CreationTime time.Time `json:"createdAt"`
	Encrypted    bool      `json:"encrypted"`
}

// PatientLabel returns the patient label of the record, which defaults to "Self"
func (r *Record) PatientLabel() string {
	if strings.TrimSpace(r.Patient) == "" {
		return cst.PatientSelf
	}
	return r.Patient
}

// Date parses the report date. ok is false if the report date cannot be parsed.
func (r *Record) Date() (d time.Time, ok bool) {
	d, err := time.Parse(ReportDateLayout, strings.TrimSpace(r.ReportDate))
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// OwnedBy reports whether the record belongs to the given user
func (r *Record) OwnedBy(u *User) bool {
	return !u.Anonymous() && r.OwnerID == u.ID
}

// RecordView is the client facing metadata of a record
type RecordView struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	ReportType string    `json:"reportType"`
	Patient    string    `json:"patient"`
	ReportDate string    `json:"reportDate"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (r *Record) View() RecordView {
	return RecordView{
		ID:         r.ID,
		Filename:   r.Filename,
		ReportType: r.ReportType,
		Patient:    r.PatientLabel(),
		ReportDate: r.ReportDate,
		CreatedAt:  r.CreationTime,
	}
}

// PreviewKind tells clients how a decrypted payload can be rendered
type PreviewKind string

const (
	PreviewImage PreviewKind = "image"
	PreviewPDF   PreviewKind = "pdf"
	PreviewNone  PreviewKind = "none"
)

// PreviewKindOf inspects the data URL prefix of a decrypted payload
func PreviewKindOf(dataURL string) PreviewKind {
	switch {
	case strings.HasPrefix(dataURL, "data:image"):
		return PreviewImage
	case strings.HasPrefix(dataURL, "data:application/pdf"):
		return PreviewPDF
	default:
		return PreviewNone
	}
}

// SharedRecord is a record as seen through a share link. Payload is nil when the record
// payload could not be decrypted, in which case the preview is not available.
type SharedRecord struct {
	RecordView
	Payload *string     `json:"payload"`
	Preview PreviewKind `json:"preview"`
}

// ShareSession is a token addressable, time limited view onto a fixed set of records. RecordIDs
// is a snapshot taken at creation time and is never updated.
type ShareSession struct {
	Token        string    `json:"token"`
	PINHash      string    `json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`
	RecordIDs    []string  `json:"recordIds"`
	OwnerID      string    `json:"-"`
	CreationTime time.Time `json:"createdAt"`
}

// Expired reports whether the session is expired at the given time
func (s *ShareSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// PINRequired reports whether a PIN must be presented before the session grants access
func (s *ShareSession) PINRequired() bool {
	return s.PINHash != ""
}

// User models individual service user
type User struct {
	ID           string
	Email        string
	Passwd       string // only used during registration and login. Ignored in all other scenarios
	Hash         string
	CreationTime time.Time
}

func (u *User) Anonymous() bool {
	return u == nil
}

// Profile is the personal data kept for one patient of a user
type Profile struct {
	Name      string `json:"name"`
	BirthDate string `json:"birthDate"`
	Gender    string `json:"gender"`
	Mobile    string `json:"mobile"`
	Email     string `json:"email"`
}

// Health is the health data kept for one patient of a user
type Health struct {
	BloodGroup  string `json:"bloodGroup"`
	Conditions  string `json:"conditions"`
	Allergies   string `json:"allergies"`
	Medications string `json:"medications"`
}
