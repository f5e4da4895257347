package importer

import (
	"strings"
	"sync"
	"unicode"
)

// MalwareGuesser implements the guess_malware heuristic: pulse tags are
// matched against malware family names the connector has already emitted, so
// a pulse tagged "emotet" links to the Emotet family even when the pulse
// does not list it explicitly.
type MalwareGuesser struct {
	mu    sync.RWMutex
	known map[string]string // normalized name -> display name
}

// NewMalwareGuesser creates an empty guess cache.
func NewMalwareGuesser() *MalwareGuesser {
	return &MalwareGuesser{known: make(map[string]string)}
}

// Learn records a malware family name as known.
func (g *MalwareGuesser) Learn(name string) {
	key := normalizeName(name)
	if key == "" {
		return
	}
	g.mu.Lock()
	g.known[key] = name
	g.mu.Unlock()
}

// Guess returns the display names of known families matching any of the
// given tags. Names already in exclude are not returned.
func (g *MalwareGuesser) Guess(tags []string, exclude map[string]bool) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var matches []string
	seen := make(map[string]bool)
	for _, tag := range tags {
		key := normalizeName(tag)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		if name, ok := g.known[key]; ok && !exclude[name] {
			matches = append(matches, name)
		}
	}
	return matches
}

// Size returns the number of known family names.
func (g *MalwareGuesser) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.known)
}

// normalizeName lowercases and strips everything but letters and digits so
// "Agent Tesla" and "agenttesla" compare equal.
func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
