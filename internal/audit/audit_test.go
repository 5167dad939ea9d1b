package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/lockvault/internal/credential"
)

func alertsOf(r Report, kind Kind) []Alert {
	var out []Alert
	for _, a := range r.Alerts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func TestAnalyzeEmpty(t *testing.T) {
	r := Analyze(nil)
	assert.Equal(t, 100, r.Score)
	assert.Zero(t, r.Total)
	assert.Empty(t, r.Alerts)
}

func TestAnalyzeReuseAndWeak(t *testing.T) {
	r := Analyze([]credential.Record{
		{ID: "1", Password: "abc"},
		{ID: "2", Password: "abc"},
		{ID: "3", Password: "Str0ng!Pass123"},
	})

	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 2, r.WeakCount)
	assert.Equal(t, 1, r.SecureCount)
	assert.Equal(t, 2, r.ReusedCount)

	reused := alertsOf(r, KindReused)
	require.Len(t, reused, 1)
	assert.Equal(t, []string{"1", "2"}, reused[0].EntryIDs)

	weak := alertsOf(r, KindWeak)
	require.Len(t, weak, 2)
	assert.Equal(t, []string{"1"}, weak[0].EntryIDs)
	assert.Equal(t, []string{"2"}, weak[1].EntryIDs)

	// (2 + 2/2) / 3 = 100% penalty
	assert.Equal(t, 0, r.Score)
}

func TestAnalyzeScore(t *testing.T) {
	tests := []struct {
		name    string
		secrets []string
		want    int
	}{
		{name: "all secure", secrets: []string{"Str0ng!Pass123", "An0ther#Secret99"}, want: 100},
		{name: "one weak of four", secrets: []string{"abc", "Str0ng!Pass123", "An0ther#Secret99", "Th1rd$Secret777"}, want: 75},
		{name: "reused pair of four", secrets: []string{"Str0ng!Pass123", "Str0ng!Pass123", "An0ther#Secret99", "Th1rd$Secret777"}, want: 75},
		{name: "one weak of three rounds", secrets: []string{"abc", "Str0ng!Pass123", "An0ther#Secret99"}, want: 67},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var records []credential.Record
			for i, s := range tt.secrets {
				records = append(records, credential.Record{ID: string(rune('a' + i)), Password: s})
			}
			assert.Equal(t, tt.want, Analyze(records).Score)
		})
	}
}

func TestAnalyzeBands(t *testing.T) {
	r := Analyze([]credential.Record{
		{ID: "w", Password: "abc"},
		{ID: "m", Password: "abcdefgh1"},
		{ID: "s", Password: "Abcdefgh1234"},
		{ID: "x", Password: "Abcdefgh1234!xyz"},
	})
	assert.Equal(t, 1, r.WeakCount)
	assert.Equal(t, 1, r.MediumCount)
	assert.Equal(t, 1, r.StrongCount)
	assert.Equal(t, 1, r.SecureCount)
}

func TestEmptySecretsAreNotReuse(t *testing.T) {
	r := Analyze([]credential.Record{{ID: "1"}, {ID: "2"}})
	assert.Zero(t, r.ReusedCount)
	assert.Empty(t, alertsOf(r, KindReused))
	assert.Len(t, alertsOf(r, KindWeak), 2)
}
