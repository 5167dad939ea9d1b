package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestVerifierWireFormat(t *testing.T) {
	v := &Verifier{Payload: []byte{1, 2, 3}, Nonce: []byte{4, 5}}
	data, err := v.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"payload":"AQID","nonce":"BAU="}` {
		t.Errorf("unexpected wire format: %s", data)
	}

	parsed, err := ParseVerifier(data)
	if err != nil {
		t.Fatalf("ParseVerifier failed: %v", err)
	}
	if string(parsed.Payload) != string(v.Payload) || string(parsed.Nonce) != string(v.Nonce) {
		t.Error("verifier changed after parsing")
	}
}

func TestParseVerifierRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "VALID"},
		{"missing nonce", `{"payload":"AQID"}`},
		{"empty payload", `{"payload":"","nonce":"BAU="}`},
		{"bad base64", `{"payload":"***","nonce":"BAU="}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseVerifier([]byte(tt.data)); !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestRecordWireFormat(t *testing.T) {
	r := Record{
		ID:        "id-1",
		Payload:   []byte("cipher"),
		Nonce:     []byte("nonce"),
		Category:  "login",
		CreatedAt: 100,
		UpdatedAt: 200,
		Favorite:  true,
	}
	data, err := EncodeRecord(r)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"id":"id-1","payload":"Y2lwaGVy","nonce":"bm9uY2U=","category":"login","createdAt":100,"updatedAt":200,"favorite":true}`
	if string(data) != want {
		t.Errorf("wire format\n got: %s\nwant: %s", data, want)
	}

	r.Icon = "github"
	data, _ = EncodeRecord(r)
	back, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}
	if back.Icon != "github" || back.UpdatedAt != 200 || !back.Favorite {
		t.Errorf("decoded record mismatch: %+v", back)
	}
}

func TestGetRecordsSkipsMalformed(t *testing.T) {
	ctx := context.Background()
	s, err := OpenBolt(filepath.Join(t.TempDir(), "test.lockvault"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	m, err := RecordMutation(Record{ID: "good", Payload: []byte("p"), Nonce: []byte("n")})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Batch(ctx, []Mutation{m, Put(NamespaceVault, "bad", []byte("{"))}); err != nil {
		t.Fatal(err)
	}

	records, malformed, err := GetRecords(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != "good" {
		t.Errorf("unexpected records: %+v", records)
	}
	if len(malformed) != 1 || malformed[0] != "bad" {
		t.Errorf("unexpected malformed list: %v", malformed)
	}
}

func TestMetadataAbsent(t *testing.T) {
	ctx := context.Background()
	s, err := OpenBolt(filepath.Join(t.TempDir(), "test.lockvault"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := GetSalt(ctx, s); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for salt, got %v", err)
	}
	if _, err := GetVerifier(ctx, s); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for verifier, got %v", err)
	}
	done, err := IsSetupComplete(ctx, s)
	if err != nil || done {
		t.Errorf("fresh store reports setup: %v %v", done, err)
	}
}

func TestGetOrCreateVaultID(t *testing.T) {
	ctx := context.Background()
	s, err := OpenBolt(filepath.Join(t.TempDir(), "test.lockvault"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := GetVaultID(ctx, s); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before creation, got %v", err)
	}
	id, err := GetOrCreateVaultID(ctx, s)
	if err != nil || id == "" {
		t.Fatalf("GetOrCreateVaultID failed: %q %v", id, err)
	}
	again, err := GetOrCreateVaultID(ctx, s)
	if err != nil || again != id {
		t.Errorf("vault id not stable: %q then %q (%v)", id, again, err)
	}
}
