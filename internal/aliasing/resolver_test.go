package aliasing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolver_CanonicalTeam(t *testing.T) {
	resolver := NewResolver(&Config{
		TeamAliases: map[string]string{
			"Lions FC":  "Lions",
			" leones ":  "Lions",
			"":          "Nobody",
			"Orphan FC": "",
		},
		TeamPatterns: []TeamPattern{
			{Pattern: "{club} (U21)", Canonical: "{club}"},
			{Pattern: "{club} Women", Canonical: "{club} W"},
			{Pattern: "", Canonical: "ignored"},
		},
	})

	tests := []struct {
		name string
		team string
		want string
	}{
		{name: "exact alias", team: "Lions FC", want: "Lions"},
		{name: "alias is case-insensitive", team: "LIONS fc", want: "Lions"},
		{name: "alias key is trimmed", team: "Leones", want: "Lions"},
		{name: "pattern with capture", team: "Tigers (U21)", want: "Tigers"},
		{name: "pattern is case-insensitive", team: "Tigers (u21)", want: "Tigers"},
		{name: "second pattern", team: "Lions Women", want: "Lions W"},
		{name: "no match passes through", team: "Bears", want: "Bears"},
		{name: "input trimmed", team: "  Bears ", want: "Bears"},
		{name: "empty stays empty", team: "", want: ""},
		{name: "alias with empty canonical skipped", team: "Orphan FC", want: "Orphan FC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolver.CanonicalTeam(tt.team))
		})
	}

	assert.Equal(t, 4, resolver.AliasCount())
}

func TestResolver_NilIsPassthrough(t *testing.T) {
	var resolver *Resolver

	assert.Equal(t, "Lions", resolver.CanonicalTeam("Lions"))
	assert.Equal(t, 0, resolver.AliasCount())
	assert.Equal(t, "Lions", NewResolver(nil).CanonicalTeam("Lions"))
}
