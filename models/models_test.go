package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestModels_RecordOwnedBy(t *testing.T) {
	tcs := []struct {
		name     string
		record   Record
		user     *User
		expected bool
	}{
		{
			name:     "AnonymousAccess",
			record:   Record{OwnerID: "bar"},
			expected: false,
		},
		{
			name:     "NonOwnerAccess",
			record:   Record{OwnerID: "bar"},
			user:     &User{ID: "foo"},
			expected: false,
		},
		{
			name:     "OwnerAccess",
			record:   Record{OwnerID: "bar"},
			user:     &User{ID: "bar"},
			expected: true,
		},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			actual := c.record.OwnedBy(c.user)
			assert.Equal(t, c.expected, actual, "unexpected record ownership")
		})
	}
}

func TestModels_RecordPatientLabel(t *testing.T) {
	assert.Equal(t, "Self", (&Record{}).PatientLabel())
	assert.Equal(t, "Self", (&Record{Patient: "  "}).PatientLabel())
	assert.Equal(t, "Mom", (&Record{Patient: "Mom"}).PatientLabel())
}

func TestModels_RecordDate(t *testing.T) {
	tcs := []struct {
		date string
		ok   bool
	}{
		{date: "2024-01-01", ok: true},
		{date: " 2023-05-05 ", ok: true},
		{date: "invalid", ok: false},
		{date: "", ok: false},
		{date: "2024-13-01", ok: false},
	}
	for _, c := range tcs {
		_, ok := (&Record{ReportDate: c.date}).Date()
		assert.Equal(t, c.ok, ok, "unexpected parse result of %q", c.date)
	}
}

func TestModels_PreviewKindOf(t *testing.T) {
	assert.Equal(t, PreviewImage, PreviewKindOf("data:image/png;base64,AAAA"))
	assert.Equal(t, PreviewPDF, PreviewKindOf("data:application/pdf;base64,AAAA"))
	assert.Equal(t, PreviewNone, PreviewKindOf("data:text/plain;base64,AAAA"))
	assert.Equal(t, PreviewNone, PreviewKindOf(""))
}

func TestModels_ShareSessionExpired(t *testing.T) {
	now := time.Now()
	tcs := []struct {
		name    string
		session ShareSession
		expired bool
	}{
		{
			name:    "expired",
			session: ShareSession{ExpiresAt: now.Add(-time.Minute)},
			expired: true,
		},
		{
			name:    "fresh",
			session: ShareSession{ExpiresAt: now.Add(time.Hour)},
			expired: false,
		},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expired, c.session.Expired(now), "unexpected session expiry")
		})
	}
}

func TestModels_UserAnonymous(t *testing.T) {
	tcs := []struct {
		user      *User
		anonymous bool
	}{
		{
			anonymous: true,
		},
		{
			user:      &User{ID: "johndoe"},
			anonymous: false,
		},
	}
	for _, c := range tcs {
		assert.Equal(t, c.anonymous, c.user.Anonymous(), "unexpected user anonymity")
	}
}
