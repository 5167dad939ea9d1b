// Package audit rates the decrypted credential set: per-entry strength,
// reused secrets and an overall score. It holds no state.
package audit

import (
	"fmt"
	"math"
	"sort"

	"github.com/illarion/lockvault/internal/credential"
)

// Kind classifies an Alert.
type Kind string

const (
	KindWeak   Kind = "weak"
	KindReused Kind = "reused"
)

// Alert flags one or more entries.
type Alert struct {
	Kind     Kind
	EntryIDs []string
	Message  string
}

// Report is the result of Analyze.
type Report struct {
	Score       int
	Total       int
	WeakCount   int
	MediumCount int
	StrongCount int
	SecureCount int
	// ReusedCount is the number of entries sharing their secret with
	// at least one other entry.
	ReusedCount int
	Alerts      []Alert
}

// Analyze builds a Report over records. Empty input scores 100.
// Entries without a password take no part in reuse detection.
func Analyze(records []credential.Record) Report {
	r := Report{Score: 100, Total: len(records)}
	if len(records) == 0 {
		return r
	}

	groups := make(map[string][]string)
	var order []string
	for _, rec := range records {
		switch credential.ClassifyStrength(rec.Password) {
		case credential.Weak:
			r.WeakCount++
			r.Alerts = append(r.Alerts, Alert{
				Kind:     KindWeak,
				EntryIDs: []string{rec.ID},
				Message:  fmt.Sprintf("%q uses a weak password", label(rec)),
			})
		case credential.Medium:
			r.MediumCount++
		case credential.Strong:
			r.StrongCount++
		case credential.Secure:
			r.SecureCount++
		}

		if rec.Password == "" {
			continue
		}
		if _, seen := groups[rec.Password]; !seen {
			order = append(order, rec.Password)
		}
		groups[rec.Password] = append(groups[rec.Password], rec.ID)
	}

	for _, secret := range order {
		ids := groups[secret]
		if len(ids) < 2 {
			continue
		}
		r.ReusedCount += len(ids)
		sorted := append([]string(nil), ids...)
		sort.Strings(sorted)
		r.Alerts = append(r.Alerts, Alert{
			Kind:     KindReused,
			EntryIDs: sorted,
			Message:  fmt.Sprintf("the same password is used by %d entries", len(ids)),
		})
	}

	penalty := (float64(r.WeakCount) + float64(r.ReusedCount)/2) / float64(r.Total) * 100
	r.Score = max(0, 100-int(math.Round(penalty)))
	return r
}

func label(rec credential.Record) string {
	if rec.Title != "" {
		return rec.Title
	}
	return rec.ID
}
