package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Record is the persisted form of a credential. Payload is the sealed
// sensitive projection; the remaining fields stay in the clear for
// filtering and sorting.
type Record struct {
	ID        string `json:"id"`
	Payload   []byte `json:"payload"`
	Nonce     []byte `json:"nonce"`
	Category  string `json:"category"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
	Favorite  bool   `json:"favorite"`
	Icon      string `json:"icon,omitempty"`
}

// Validate checks the structural fields needed to attempt decryption
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: record without id", ErrMalformed)
	}
	if len(r.Payload) == 0 || len(r.Nonce) == 0 {
		return fmt.Errorf("%w: record %s missing payload or nonce", ErrMalformed, r.ID)
	}
	return nil
}

// EncodeRecord marshals a record into its stored JSON form
func EncodeRecord(r Record) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRecord unmarshals and validates a stored record
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("%w: record: %v", ErrMalformed, err)
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// RecordMutation stores r under its id in the vault namespace
func RecordMutation(r Record) (Mutation, error) {
	data, err := EncodeRecord(r)
	if err != nil {
		return Mutation{}, fmt.Errorf("failed to marshal record %s: %w", r.ID, err)
	}
	return Put(NamespaceVault, r.ID, data), nil
}

// GetRecords loads every vault record. Entries that fail to decode are
// reported by key in malformed instead of failing the whole load.
func GetRecords(ctx context.Context, s Store) (records []Record, malformed []string, err error) {
	entries, err := s.GetAll(ctx, NamespaceVault)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		r, err := DecodeRecord(e.Value)
		if err != nil {
			malformed = append(malformed, e.Key)
			continue
		}
		records = append(records, r)
	}
	return records, malformed, nil
}
