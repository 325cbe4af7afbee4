// Package idempotency lets clients retry a submission under an
// Idempotency-Key header without publishing the calculation twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/calculator"
	apperrors "github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/redis"
)

const keyPrefix = "calc:idem:"

// MaxKeyLength bounds the Idempotency-Key header.
const MaxKeyLength = 128

// KV is the subset of the Redis client the store needs.
type KV interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Entry is what a reserved key maps to.
type Entry struct {
	RequestID   uuid.UUID `json:"requestId"`
	Fingerprint string    `json:"fingerprint"`
}

// Store reserves idempotency keys in a KV backend with a TTL.
type Store struct {
	kv     KV
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a Store on kv. A non-positive ttl means 24 hours.
func New(kv KV, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		kv:     kv,
		ttl:    ttl,
		logger: slog.Default().With("component", "idempotency"),
	}
}

// Fingerprint identifies the calculation a request asks for, independent of
// operation case.
func Fingerprint(first, second float64, op calculator.Operation) string {
	var b strings.Builder
	b.WriteString(strconv.FormatFloat(first, 'g', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(second, 'g', -1, 64))
	b.WriteByte('|')
	b.WriteString(op.String())
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Reserve claims key for entry. When the key is new it returns entry and
// true. When the key was already claimed for the same calculation it returns
// the earlier entry and false. A key claimed for a different calculation
// yields ErrIdempotencyConflict.
func (s *Store) Reserve(ctx context.Context, key string, entry Entry) (Entry, bool, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, false, fmt.Errorf("encoding idempotency entry: %w", err)
	}
	stored, err := s.kv.SetNX(ctx, keyPrefix+key, data, s.ttl)
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: reserving idempotency key: %v", apperrors.ErrUnavailable, err)
	}
	if stored {
		return entry, true, nil
	}

	raw, err := s.kv.Get(ctx, keyPrefix+key)
	if err != nil {
		if pkgredis.IsNilError(err) {
			// Expired between SETNX and GET; treat as a fresh claim.
			return s.Reserve(ctx, key, entry)
		}
		return Entry{}, false, fmt.Errorf("%w: reading idempotency key: %v", apperrors.ErrUnavailable, err)
	}
	var existing Entry
	if err := json.Unmarshal([]byte(raw), &existing); err != nil {
		return Entry{}, false, fmt.Errorf("decoding idempotency entry: %w", err)
	}
	if existing.Fingerprint != entry.Fingerprint {
		return Entry{}, false, apperrors.New(apperrors.ErrIdempotencyConflict, 409,
			"idempotency key already used for a different calculation")
	}
	s.logger.Info("duplicate submission detected", "idempotency_key", key, "existing_id", existing.RequestID)
	return existing, false, nil
}

// Release forgets key so a failed submission can be retried under it.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.kv.Del(ctx, keyPrefix+key)
}
