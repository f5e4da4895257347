package stix

import (
	"encoding/json"
	"fmt"
)

// Bundle is a STIX 2.1 bundle of objects ready to push to the platform.
type Bundle struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Objects []any  `json:"objects"`
}

// NewBundle creates an empty bundle with a random ID. Bundle IDs are
// intentionally not deterministic; two pushes of the same content are two
// distinct transmissions.
func NewBundle() *Bundle {
	return &Bundle{
		Type: "bundle",
		ID:   RandomID("bundle"),
	}
}

// Add appends objects to the bundle.
func (b *Bundle) Add(objects ...any) {
	b.Objects = append(b.Objects, objects...)
}

// Len returns the number of objects in the bundle.
func (b *Bundle) Len() int {
	return len(b.Objects)
}

// JSON serializes the bundle. A bundle with no objects is invalid.
func (b *Bundle) JSON() ([]byte, error) {
	if len(b.Objects) == 0 {
		return nil, fmt.Errorf("refusing to serialize empty bundle %s", b.ID)
	}
	return json.Marshal(b)
}
