// Package dedup suppresses re-triggering from redundant delivery of the
// same underlying occurrence: a mailbox re-scan, a webhook retry, or a
// scheduler tick re-evaluating the same due slot. It derives a stable
// signature per event and tracks seen signatures in a bounded
// time-windowed store.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/clayforge/trigger/event"
)

// DefaultWindow is the default signature expiry. It must exceed the
// longest expected re-delivery delay of any source.
const DefaultWindow = 48 * time.Hour

// bodyPrefixLen bounds the mailbox body contribution so trailing
// signatures or quoted threads don't defeat dedup.
const bodyPrefixLen = 256

// Signature derives the deduplication key for an event. The inputs are
// source-specific: they identify the underlying occurrence, not the
// delivery. Within the dedup window two deliveries of the same
// occurrence produce the same signature.
func Signature(e *event.TriggerEvent) string {
	var parts []string
	switch e.Source {
	case event.SourceMailbox:
		body := e.RawText
		if len(body) > bodyPrefixLen {
			body = body[:bodyPrefixLen]
		}
		parts = []string{e.Field("sender"), e.Field("subject"), body}
	case event.SourceTelephony:
		parts = []string{e.Field("caller"), e.Field("call_sid")}
	case event.SourceSocial:
		parts = []string{e.Field("platform"), e.Field("post_id")}
	case event.SourceCalendar:
		parts = []string{e.Field("event_id"), e.Field("event_start")}
	case event.SourceWebForm:
		parts = []string{
			e.Field("client_email"),
			e.OccurredAt.Truncate(time.Minute).UTC().Format(time.RFC3339),
		}
	case event.SourceClock:
		parts = []string{e.Field("job_id"), e.Field("scheduled_for")}
	default:
		parts = []string{e.ID}
	}

	h := sha256.Sum256([]byte(string(e.Source) + "\x00" + strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}

// Store tracks seen signatures. Implementations must be safe for
// concurrent use; Remember reports whether the signature was already
// present so check-and-set races collapse to a single winner.
type Store interface {
	// Seen reports whether the signature was remembered within the window.
	Seen(ctx context.Context, sig string) (bool, error)
	// Remember records the signature and reports whether it was already
	// present (true means a duplicate).
	Remember(ctx context.Context, sig string) (bool, error)
}

// MemoryStore is an in-process windowed signature set.
type MemoryStore struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time // signature -> remembered at
	nowFn  func() time.Time
}

// NewMemoryStore creates a memory store with the given expiry window.
// A non-positive window falls back to DefaultWindow.
func NewMemoryStore(window time.Duration) *MemoryStore {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryStore{
		window: window,
		seen:   make(map[string]time.Time),
		nowFn:  time.Now,
	}
}

// Seen implements Store.
func (s *MemoryStore) Seen(_ context.Context, sig string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	_, ok := s.seen[sig]
	return ok, nil
}

// Remember implements Store.
func (s *MemoryStore) Remember(_ context.Context, sig string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	if _, ok := s.seen[sig]; ok {
		return true, nil
	}
	s.seen[sig] = s.nowFn()
	return false, nil
}

// Len returns the number of live signatures.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	return len(s.seen)
}

func (s *MemoryStore) sweepLocked() {
	cutoff := s.nowFn().Add(-s.window)
	for sig, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, sig)
		}
	}
}
