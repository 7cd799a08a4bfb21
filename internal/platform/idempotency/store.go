// Package idempotency lets order creation absorb client retries: the first
// request seen under an Idempotency-Key runs normally and its response is
// stored; replays of the same request get the stored response back.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

// DefaultTTL bounds how long a stored response stays replayable.
const DefaultTTL = 24 * time.Hour

// ErrKeyReused signals an Idempotency-Key presented with a different
// request fingerprint than the one it was first claimed for.
var ErrKeyReused = errors.New("idempotency: key already used for a different request")

// State describes what a Claim found for a key.
type State int

const (
	// StateNew means the key was unclaimed; the caller should run the request.
	StateNew State = iota
	// StateReplay means a stored response exists and should be written back.
	StateReplay
	// StateInFlight means the first request under this key has not finished.
	StateInFlight
)

// StoredResponse is the replayable part of a completed request.
type StoredResponse struct {
	Status int
	Header map[string][]string
	Body   []byte
}

// Claim is the outcome of attempting to take ownership of a key.
type Claim struct {
	State    State
	Response StoredResponse
}

// Store persists key claims and their completed responses. Expired entries
// behave as if absent.
type Store interface {
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error)
	Complete(ctx context.Context, key string, resp StoredResponse, now time.Time, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

func docID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// storableHeader copies a response header, dropping fields the transport
// regenerates on replay.
func storableHeader(header http.Header) map[string][]string {
	if len(header) == 0 {
		return nil
	}
	out := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		switch canonical {
		case "Content-Length", "Date", "Connection", "Transfer-Encoding":
			continue
		}
		out[canonical] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
