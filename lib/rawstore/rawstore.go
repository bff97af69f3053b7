// Package rawstore persists the exact output of every extraction,
// content-addressed and dated, before any normalization touches it.
// Envelopes are written once and never mutated: they are the permanent
// source of truth when a downstream bug corrupts the normalized data.
package rawstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cocos-collector/lib/timezone"
)

// Envelope is the audit unit stored on disk:
// <base>/<YYYY>/<MM>/<DD>/snapshot_<HHMMSS>_<checksum8>.json
type Envelope struct {
	CollectedAt time.Time       `json:"collected_at"`
	Source      string          `json:"source"`
	Checksum    string          `json:"checksum"`
	Metadata    map[string]any  `json:"metadata"`
	Data        json.RawMessage `json:"data"`
}

type Store struct {
	base string
	now  func() time.Time
}

func NewStore(base string) (*Store, error) {
	err := os.MkdirAll(base, 0o755)
	if err != nil {
		return nil, err
	}
	return &Store{base: base, now: timezone.Now}, nil
}

// Save serializes data, computes its content checksum and writes the
// envelope atomically. It returns the relative path the envelope can be
// reloaded from. Nothing is left behind on failure: the envelope either
// exists completely or not at all.
func (s *Store) Save(ctx context.Context, data any, source string, metadata map[string]any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("serialize snapshot data: %w", err)
	}

	sum := sha256.Sum256(raw)
	checksum := hex.EncodeToString(sum[:])[:8]

	now := s.now()
	dateDir := filepath.Join(
		s.base,
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()),
	)
	err = os.MkdirAll(dateDir, 0o755)
	if err != nil {
		return "", err
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	envelope := Envelope{
		CollectedAt: now,
		Source:      source,
		Checksum:    checksum,
		Metadata:    metadata,
		Data:        raw,
	}
	encoded, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("snapshot_%s_%s.json", now.Format("150405"), checksum)
	finalPath := filepath.Join(dateDir, filename)

	tmp, err := os.CreateTemp(dateDir, ".snapshot-*")
	if err != nil {
		return "", err
	}
	_, err = tmp.Write(encoded)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	err = os.Rename(tmp.Name(), finalPath)
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	rel, err := filepath.Rel(s.base, finalPath)
	if err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "raw snapshot saved", "path", rel, "checksum", checksum)
	return rel, nil
}

// Load reads back the envelope a previous Save returned a reference to.
func (s *Store) Load(ref string) (Envelope, error) {
	raw, err := os.ReadFile(filepath.Join(s.base, ref))
	if err != nil {
		return Envelope{}, err
	}
	var envelope Envelope
	err = json.Unmarshal(raw, &envelope)
	if err != nil {
		return Envelope{}, fmt.Errorf("decode envelope %s: %w", ref, err)
	}
	return envelope, nil
}

// IsAvailable reports whether the backing directory exists, without
// side effects. Used as a pre-flight health check before a run.
func (s *Store) IsAvailable() bool {
	info, err := os.Stat(s.base)
	return err == nil && info.IsDir()
}
