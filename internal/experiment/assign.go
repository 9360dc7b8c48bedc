package experiment

import (
	"github.com/cespare/xxhash/v2"
)

// Bucket hashes (experimentID, sessionID) into [0, 100).
func Bucket(experimentID, sessionID string) int {
	return int(xxhash.Sum64String(experimentID+":"+sessionID) % 100)
}

// Assign deterministically maps a session onto an arm using the configured
// split, walking cumulative thresholds in the order control, A, B.
func Assign(experimentID, sessionID string, split Split) Variant {
	bucket := Bucket(experimentID, sessionID)

	if bucket < split.Control {
		return Control
	}
	if bucket < split.Control+split.VariantA || !split.HasVariantB() {
		return VariantA
	}
	return VariantB
}
