// Package listing filters, sorts and selects the records of a user the way the records page
// presents them.
package listing

import (
	"sort"
	"strings"

	cst "healx.io/healx/constants"
	se "healx.io/healx/errors"
	md "healx.io/healx/models"
)

// Query narrows a record list. Text is matched case-insensitively against filename, report type
// and patient label. Patient is an exact patient label, or "all" / empty for every patient.
type Query struct {
	Text    string
	Patient string
}

func (q Query) matches(r *md.Record) bool {
	if q.Patient != "" && q.Patient != cst.PatientAll && r.PatientLabel() != q.Patient {
		return false
	}
	text := strings.ToLower(q.Text)
	if text == "" {
		return true
	}
	for _, field := range []string{r.Filename, r.ReportType, r.PatientLabel()} {
		if strings.Contains(strings.ToLower(field), text) {
			return true
		}
	}
	return false
}

// Filter returns the records matching q, in their original order
func Filter(records []*md.Record, q Query) []*md.Record {
	out := make([]*md.Record, 0, len(records))
	for _, r := range records {
		if q.matches(r) {
			out = append(out, r)
		}
	}
	return out
}

type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// ParseOrder parses a sort order. Empty defaults to Desc, newest first.
func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return Desc, nil
	case Asc, Desc:
		return o, nil
	default:
		return "", se.NewBadInput("sort order must be asc or desc")
	}
}

// Sort orders records by report date in place. Records whose report date can not be parsed sort
// after every valid date in both orders. Ties are broken by filename and then by id so that the
// order is total.
func Sort(records []*md.Record, o Order) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		da, okA := a.Date()
		db, okB := b.Date()
		switch {
		case okA && !okB:
			return true
		case !okA && okB:
			return false
		case okA && okB && !da.Equal(db):
			if o == Asc {
				return da.Before(db)
			}
			return da.After(db)
		}
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		return a.ID < b.ID
	})
}

// Patients lists the unique patient labels of records in first seen order
func Patients(records []*md.Record) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, r := range records {
		p := r.PatientLabel()
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// CountForPatient counts the records of one patient label
func CountForPatient(records []*md.Record, patient string) int {
	n := 0
	for _, r := range records {
		if r.PatientLabel() == patient {
			n++
		}
	}
	return n
}
