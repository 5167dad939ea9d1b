package credential

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const maskedSecret = "********"

// render prints the comparable fields of a record one per line. The secret
// is never printed, only whether it differs from other.
func render(r, other Record) string {
	secret := maskedSecret
	if r.Password != other.Password {
		secret = maskedSecret + " (differs)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "title: %s\n", r.Title)
	fmt.Fprintf(&b, "username: %s\n", r.Username)
	fmt.Fprintf(&b, "password: %s\n", secret)
	fmt.Fprintf(&b, "website: %s\n", r.Website)
	fmt.Fprintf(&b, "url: %s\n", r.URL)
	fmt.Fprintf(&b, "notes: %s\n", strings.ReplaceAll(r.Notes, "\n", `\n`))
	fmt.Fprintf(&b, "category: %s\n", r.Category)
	fmt.Fprintf(&b, "tags: %s\n", strings.Join(r.Tags, ", "))
	fmt.Fprintf(&b, "favorite: %t\n", r.Favorite)
	return b.String()
}

// Diff returns a line-oriented diff between a local and an incoming record,
// "-" for local lines and "+" for incoming ones. Equal records yield "".
func Diff(local, incoming Record) string {
	a := render(local, incoming)
	b := render(incoming, local)
	if a == b {
		return ""
	}

	dmp := diffmatchpatch.New()
	ra, rb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ra, rb, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out.WriteString(prefix + line)
		}
	}
	return out.String()
}
