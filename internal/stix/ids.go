package stix

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// oasisNamespace is the OASIS-defined namespace used to derive deterministic
// STIX identifiers. Objects derived from the same contributing properties get
// the same ID on every run, so re-imports update instead of duplicating.
var oasisNamespace = uuid.MustParse("00abedb4-aa42-466c-9c01-fed23315a9b7")

// DeterministicID derives a stable STIX identifier of the given object type
// from its contributing properties.
func DeterministicID(objectType string, parts ...string) string {
	seed := strings.Join(parts, "|")
	return objectType + "--" + uuid.NewSHA1(oasisNamespace, []byte(seed)).String()
}

// RandomID generates a random STIX identifier of the given object type.
func RandomID(objectType string) string {
	return objectType + "--" + uuid.NewString()
}

// FormatTime renders a timestamp in the STIX 2.1 millisecond format.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
