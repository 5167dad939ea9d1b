// Package remote implements the outbound side of sync over a plain
// directory, such as a folder shared between devices by a file sync tool.
//
// Each record is stored as <id>.json in its persisted form, so the remote
// never sees plaintext. credentials.json carries the salt and verifier pair
// another device needs to derive the same key.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/illarion/lockvault/internal/security"
	"github.com/illarion/lockvault/internal/storage"
)

const (
	recordSuffix    = ".json"
	credentialsFile = "credentials.json"
)

var (
	ErrInvalidID     = errors.New("invalid record id")
	ErrNoCredentials = errors.New("no credentials published")
)

// Credentials is the cross-device exchange pair: the salt as base64 and the
// verifier as its JSON string.
type Credentials struct {
	Salt     string `json:"salt"`
	Verifier string `json:"verifier"`
}

// Dir is a remote backed by a local directory.
type Dir struct {
	pv  *security.PathValidator
	log *zap.Logger
}

// Open opens or creates the remote directory at path.
func Open(path string, log *zap.Logger) (*Dir, error) {
	pv, err := security.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote directory: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dir{pv: pv, log: log}, nil
}

// Close releases the directory handle.
func (d *Dir) Close() error {
	return d.pv.Close()
}

func recordName(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id+recordSuffix == credentialsFile {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return id + recordSuffix, nil
}

// Upload writes rec, replacing any previous version.
func (d *Dir) Upload(ctx context.Context, rec storage.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := recordName(rec.ID)
	if err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	data, err := storage.EncodeRecord(rec)
	if err != nil {
		return err
	}
	if err := d.pv.WriteFile(name, data, 0600); err != nil {
		return fmt.Errorf("failed to upload %s: %w", rec.ID, err)
	}
	return nil
}

// Delete removes the record with id. Deleting an absent record is not an
// error.
func (d *Dir) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := recordName(id)
	if err != nil {
		return err
	}
	if err := d.pv.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return nil
}

// List returns every well-formed record. Unreadable files are logged and
// skipped.
func (d *Dir) List(ctx context.Context) ([]storage.Record, error) {
	names, err := d.pv.List(recordSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote: %w", err)
	}

	var out []storage.Record
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if name == credentialsFile {
			continue
		}
		data, err := d.pv.ReadFile(name)
		if err != nil {
			d.log.Warn("skipping unreadable remote file", zap.String("file", name), zap.Error(err))
			continue
		}
		rec, err := storage.DecodeRecord(data)
		if err != nil {
			d.log.Warn("skipping malformed remote record", zap.String("file", name), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// PublishCredentials writes the exchange pair.
func (d *Dir) PublishCredentials(ctx context.Context, c Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return d.pv.WriteFile(credentialsFile, data, 0600)
}

// Credentials reads the exchange pair, ErrNoCredentials if none was
// published.
func (d *Dir) Credentials(ctx context.Context) (Credentials, error) {
	var c Credentials
	if err := ctx.Err(); err != nil {
		return c, err
	}
	data, err := d.pv.ReadFile(credentialsFile)
	if errors.Is(err, os.ErrNotExist) {
		return c, ErrNoCredentials
	}
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to parse %s: %w", credentialsFile, err)
	}
	return c, nil
}
