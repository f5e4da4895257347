package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tdr0/connectors/internal/otx"
)

// Deduplicator filters pulses that were already imported in an earlier cycle
// at the same revision. The feed's modified_since filter overlaps cycles on
// purpose, so re-deliveries are expected.
type Deduplicator struct {
	fingerprints map[string]time.Time
	window       time.Duration
}

// NewDeduplicator creates a deduplicator keeping fingerprints for the given
// window.
func NewDeduplicator(window time.Duration) *Deduplicator {
	return &Deduplicator{
		fingerprints: make(map[string]time.Time),
		window:       window,
	}
}

// Fingerprint identifies a pulse at a specific revision.
func Fingerprint(pulse otx.Pulse) string {
	data := fmt.Sprintf("%s|%s|%d", pulse.ID, pulse.Modified.UTC().Format(time.RFC3339), pulse.Revision)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// IsNew reports whether this pulse revision has not been seen yet.
func (d *Deduplicator) IsNew(pulse otx.Pulse) bool {
	_, exists := d.fingerprints[Fingerprint(pulse)]
	return !exists
}

// Mark records a pulse revision as imported.
func (d *Deduplicator) Mark(pulse otx.Pulse) {
	d.fingerprints[Fingerprint(pulse)] = time.Now()
}

// Cleanup drops fingerprints older than the retention window.
func (d *Deduplicator) Cleanup(now time.Time) {
	cutoff := now.Add(-d.window)
	for fp, seen := range d.fingerprints {
		if seen.Before(cutoff) {
			delete(d.fingerprints, fp)
		}
	}
}

// Size returns the number of retained fingerprints.
func (d *Deduplicator) Size() int {
	return len(d.fingerprints)
}
