package importer

import (
	"reflect"
	"testing"
)

func TestGuesserLearnAndGuess(t *testing.T) {
	g := NewMalwareGuesser()
	g.Learn("Emotet")
	g.Learn("Agent Tesla")

	if g.Size() != 2 {
		t.Fatalf("Size = %d, want 2", g.Size())
	}

	tests := []struct {
		name    string
		tags    []string
		exclude map[string]bool
		want    []string
	}{
		{
			name: "exact tag",
			tags: []string{"emotet"},
			want: []string{"Emotet"},
		},
		{
			name: "normalized tag",
			tags: []string{"agenttesla"},
			want: []string{"Agent Tesla"},
		},
		{
			name: "unknown tag",
			tags: []string{"phishing"},
			want: nil,
		},
		{
			name:    "excluded family",
			tags:    []string{"emotet"},
			exclude: map[string]bool{"Emotet": true},
			want:    nil,
		},
		{
			name: "duplicate tags collapse",
			tags: []string{"Emotet", "emotet", "EMOTET"},
			want: []string{"Emotet"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Guess(tt.tags, tt.exclude)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Guess(%v) = %v, want %v", tt.tags, got, tt.want)
			}
		})
	}
}

func TestGuesserIgnoresEmptyNames(t *testing.T) {
	g := NewMalwareGuesser()
	g.Learn("")
	g.Learn("  ")
	g.Learn("!!!")

	if g.Size() != 0 {
		t.Errorf("Size = %d, want 0", g.Size())
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Agent Tesla", "agenttesla"},
		{"EMOTET", "emotet"},
		{"njRAT v2", "njratv2"},
		{"---", ""},
	}
	for _, tt := range tests {
		if got := normalizeName(tt.in); got != tt.want {
			t.Errorf("normalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
