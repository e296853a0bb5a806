package aliasing

import (
	"log/slog"
	"regexp"
	"strings"
)

type (
	compiledPattern struct {
		regex     *regexp.Regexp
		canonical string
	}

	// Resolver maps team names to their canonical form.
	// Immutable after construction and safe for concurrent use.
	Resolver struct {
		aliases  map[string]string
		patterns []compiledPattern
	}
)

var variableRegex = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// compilePattern turns "{club} (U21)" into ^(?P<club>.+?) \(U21\)$.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	result := regexp.QuoteMeta(pattern)

	for _, match := range variableRegex.FindAllStringSubmatch(pattern, -1) {
		result = strings.Replace(result, regexp.QuoteMeta(match[0]), "(?P<"+match[1]+">.+?)", 1)
	}

	return regexp.Compile("(?i)^" + result + "$")
}

// NewResolver builds a resolver from cfg. Invalid entries are skipped with a
// warning. A nil or empty config yields a passthrough resolver.
func NewResolver(cfg *Config) *Resolver {
	r := &Resolver{aliases: make(map[string]string)}
	if cfg == nil {
		return r
	}

	for alias, canonical := range cfg.TeamAliases {
		alias = normalizeKey(alias)
		canonical = strings.TrimSpace(canonical)

		if alias == "" || canonical == "" {
			slog.Warn("Skipping team alias with empty name",
				slog.String("alias", alias),
				slog.String("canonical", canonical))

			continue
		}

		r.aliases[alias] = canonical
	}

	for _, tp := range cfg.TeamPatterns {
		pattern := strings.TrimSpace(tp.Pattern)
		canonical := strings.TrimSpace(tp.Canonical)

		if pattern == "" || canonical == "" {
			slog.Warn("Skipping team pattern with empty pattern or canonical",
				slog.String("pattern", pattern))

			continue
		}

		regex, err := compilePattern(pattern)
		if err != nil {
			slog.Warn("Skipping invalid team pattern",
				slog.String("pattern", pattern),
				slog.String("error", err.Error()))

			continue
		}

		r.patterns = append(r.patterns, compiledPattern{regex: regex, canonical: canonical})
	}

	return r
}

// AliasCount returns the number of aliases and patterns in effect.
func (r *Resolver) AliasCount() int {
	if r == nil {
		return 0
	}

	return len(r.aliases) + len(r.patterns)
}

// CanonicalTeam returns the canonical name of team, or team itself (trimmed)
// when nothing matches. Aliases are checked before patterns; the first matching
// pattern wins.
func (r *Resolver) CanonicalTeam(team string) string {
	team = strings.TrimSpace(team)
	if r == nil || team == "" {
		return team
	}

	if canonical, ok := r.aliases[normalizeKey(team)]; ok {
		return canonical
	}

	for _, cp := range r.patterns {
		match := cp.regex.FindStringSubmatch(team)
		if match == nil {
			continue
		}

		result := cp.canonical

		for i, name := range cp.regex.SubexpNames() {
			if i > 0 && name != "" {
				result = strings.ReplaceAll(result, "{"+name+"}", match[i])
			}
		}

		return strings.TrimSpace(result)
	}

	return team
}

func normalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
