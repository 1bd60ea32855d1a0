// Package checkpoint persists suspended session state so classification
// runs survive process restarts. Each checkpoint is wrapped in a
// versioned envelope with an integrity checksum.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ahrav/go-taxa/internal/domain"
)

// envelopeVersion guards against loading checkpoints written by an
// incompatible schema.
const envelopeVersion = "1.0.0"

const keyPrefix = "ckpt/"

var (
	// ErrNotFound indicates no checkpoint exists for the session.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrChecksumMismatch indicates the stored state was corrupted.
	ErrChecksumMismatch = errors.New("checkpoint checksum mismatch")
	// ErrVersionMismatch indicates an incompatible envelope version.
	ErrVersionMismatch = errors.New("checkpoint version mismatch")
)

// envelope is the stored wire form of a checkpoint.
type envelope struct {
	Version  string            `json:"version"`
	SavedAt  time.Time         `json:"saved_at"`
	Checksum string            `json:"checksum"`
	State    domain.Checkpoint `json:"state"`
}

// Store persists checkpoints in the shared embedded database.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewStore wraps an open database.
func NewStore(db *badger.DB) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "checkpoint"),
	}
}

func key(sessionID string) []byte { return []byte(keyPrefix + sessionID) }

// Save writes the checkpoint, overwriting any previous one for the
// same session.
func (s *Store) Save(_ context.Context, cp domain.Checkpoint) error {
	if cp.SessionID == "" {
		return errors.New("checkpoint session id must not be empty")
	}

	sum, err := stateChecksum(cp)
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope{
		Version:  envelopeVersion,
		SavedAt:  time.Now().UTC(),
		Checksum: sum,
		State:    cp,
	})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(cp.SessionID), data)
	})
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.SessionID, err)
	}

	s.logger.Debug("checkpoint saved",
		"session_id", cp.SessionID,
		"phase", cp.Phase,
		"pending_cases", len(cp.PendingCases))
	return nil
}

// Load returns the checkpoint for the session, verifying integrity.
func (s *Store) Load(_ context.Context, sessionID string) (*domain.Checkpoint, error) {
	var env envelope
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("load checkpoint %s: %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("load checkpoint %s: %w", sessionID, err)
	}

	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("load checkpoint %s: %w: have %s, want %s",
			sessionID, ErrVersionMismatch, env.Version, envelopeVersion)
	}
	sum, err := stateChecksum(env.State)
	if err != nil {
		return nil, err
	}
	if sum != env.Checksum {
		return nil, fmt.Errorf("load checkpoint %s: %w", sessionID, ErrChecksumMismatch)
	}

	return &env.State, nil
}

// Delete removes the session's checkpoint. Deleting a missing
// checkpoint is not an error.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(sessionID))
	})
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", sessionID, err)
	}
	return nil
}

func stateChecksum(cp domain.Checkpoint) (string, error) {
	data, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("marshal checkpoint state: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
