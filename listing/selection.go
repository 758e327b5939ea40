package listing

import (
	"fmt"
	"strings"
	"time"

	se "healx.io/healx/errors"
	md "healx.io/healx/models"
)

// Selection is an ordered set of record ids. Select-all operates on a filtered view, never on
// the full record collection.
type Selection struct {
	ids []string
	set map[string]struct{}
}

func NewSelection(ids ...string) *Selection {
	s := &Selection{set: make(map[string]struct{})}
	for _, id := range ids {
		s.add(id)
	}
	return s
}

func (s *Selection) add(id string) {
	if _, ok := s.set[id]; ok || id == "" {
		return
	}
	s.set[id] = struct{}{}
	s.ids = append(s.ids, id)
}

func (s *Selection) remove(id string) {
	if _, ok := s.set[id]; !ok {
		return
	}
	delete(s.set, id)
	for i, v := range s.ids {
		if v == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
}

func (s *Selection) Has(id string) bool {
	_, ok := s.set[id]
	return ok
}

// Toggle selects id if it is not selected and deselects it otherwise
func (s *Selection) Toggle(id string) {
	if s.Has(id) {
		s.remove(id)
		return
	}
	s.add(id)
}

// AllSelected reports whether view is non-empty and every record in it is selected
func (s *Selection) AllSelected(view []*md.Record) bool {
	if len(view) == 0 {
		return false
	}
	for _, r := range view {
		if !s.Has(r.ID) {
			return false
		}
	}
	return true
}

// ToggleAll clears the selection if every record of view is selected, otherwise the selection
// becomes exactly the records of view
func (s *Selection) ToggleAll(view []*md.Record) {
	all := s.AllSelected(view)
	s.ids, s.set = nil, make(map[string]struct{})
	if all {
		return
	}
	for _, r := range view {
		s.add(r.ID)
	}
}

// IDs returns selected ids in selection order
func (s *Selection) IDs() []string {
	return append([]string{}, s.ids...)
}

func (s *Selection) Len() int {
	return len(s.ids)
}

const (
	MinPINLen = 4
	MaxPINLen = 32
	// bcrypt only accepts up to 72 bytes
	maxPINBytes = 72
)

// ExpiryChoices are the share link lifetimes, in hours, a user can pick from
var ExpiryChoices = []int{1, 3, 6, 12, 24, 48}

// ShareRequest asks for a share link onto the selected records
type ShareRequest struct {
	RecordIDs   []string `json:"recordIds"`
	PIN         string   `json:"pin"`
	ExpiryHours int      `json:"expiryHours"`
}

// Validate rejects the request before any store is called
func (r *ShareRequest) Validate() error {
	if NewSelection(r.RecordIDs...).Len() == 0 {
		return se.NewBadInput("select at least one record to share")
	}
	pin := strings.TrimSpace(r.PIN)
	if pin == "" {
		return se.NewBadInput("enter a PIN to protect the link")
	}
	// visitors type the PIN as is, so a padded PIN could never be matched
	if pin != r.PIN {
		return se.NewBadInput("PIN must not start or end with spaces")
	}
	if n := len([]rune(pin)); n < MinPINLen || n > MaxPINLen || len(r.PIN) > maxPINBytes {
		return se.NewBadInput(fmt.Sprintf("PIN must have %d to %d characters", MinPINLen, MaxPINLen))
	}
	for _, h := range ExpiryChoices {
		if r.ExpiryHours == h {
			return nil
		}
	}
	return se.NewBadInput(fmt.Sprintf("expiry must be one of %v hours", ExpiryChoices))
}

// Expiry returns the lifetime of the requested link
func (r *ShareRequest) Expiry() time.Duration {
	return time.Duration(r.ExpiryHours) * time.Hour
}
