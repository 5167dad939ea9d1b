// Package credential defines the decrypted form of a vault entry and the
// password strength rating attached to it.
package credential

import (
	"strings"
	"unicode"
)

// Record is a decrypted credential. Timestamps are Unix milliseconds.
type Record struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Username  string   `json:"username"`
	Password  string   `json:"password"`
	Website   string   `json:"website"`
	URL       string   `json:"url"`
	Notes     string   `json:"notes"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
	Favorite  bool     `json:"favorite"`
	Icon      string   `json:"icon,omitempty"`
	Strength  Strength `json:"strength"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
}

// Sealed is the sensitive projection of a Record that gets encrypted.
type Sealed struct {
	Title    string   `json:"title"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Website  string   `json:"website"`
	URL      string   `json:"url"`
	Notes    string   `json:"notes"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// Seal returns the sensitive projection of r.
func (r Record) Seal() Sealed {
	return Sealed{
		Title:    r.Title,
		Username: r.Username,
		Password: r.Password,
		Website:  r.Website,
		URL:      r.URL,
		Notes:    r.Notes,
		Category: r.Category,
		Tags:     append([]string(nil), r.Tags...),
	}
}

// Open fills the sensitive fields of r from s.
func (r Record) Open(s Sealed) Record {
	r.Title = s.Title
	r.Username = s.Username
	r.Password = s.Password
	r.Website = s.Website
	r.URL = s.URL
	r.Notes = s.Notes
	r.Category = s.Category
	r.Tags = s.Tags
	r.Strength = ClassifyStrength(s.Password)
	return r
}

// Matches reports whether query occurs in the title, username, website, url
// or any tag, ignoring case.
func (r Record) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	for _, field := range []string{r.Title, r.Username, r.Website, r.URL} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	for _, tag := range r.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// Strength is the four-band password rating.
type Strength int

const (
	Weak Strength = iota
	Medium
	Strong
	Secure
)

func (s Strength) String() string {
	switch s {
	case Weak:
		return "weak"
	case Medium:
		return "medium"
	case Strong:
		return "strong"
	case Secure:
		return "secure"
	default:
		return "unknown"
	}
}

// Score rates a secret from 0 to 7: one point per length threshold reached
// (8, 12, 16) and one per character class present.
func Score(secret string) int {
	score := 0
	n := len([]rune(secret))
	for _, threshold := range []int{8, 12, 16} {
		if n >= threshold {
			score++
		}
	}

	var upper, lower, digit, symbol bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	for _, present := range []bool{upper, lower, digit, symbol} {
		if present {
			score++
		}
	}
	return score
}

// ClassifyStrength buckets Score into Weak < 2 <= Medium < 4 <= Strong < 6 <= Secure.
func ClassifyStrength(secret string) Strength {
	switch score := Score(secret); {
	case score < 2:
		return Weak
	case score < 4:
		return Medium
	case score < 6:
		return Strong
	default:
		return Secure
	}
}
