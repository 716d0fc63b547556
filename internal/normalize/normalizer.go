package normalize

import (
	"strings"
	"sync"
)

// Overflow replaces names once a normalizer has seen its limit of distinct
// templates.
const Overflow = "<OTHER>"

// Normalizer maps span names to templates. It is safe for concurrent use.
type Normalizer struct {
	patterns []CompiledPattern
	limit    int

	mu        sync.Mutex
	templates map[string]struct{}
}

// New creates a normalizer. A nil pattern list selects DefaultPatterns.
// With limit > 0, templates beyond the first limit distinct ones map to
// Overflow.
func New(patterns []CompiledPattern, limit int) *Normalizer {
	if patterns == nil {
		patterns = DefaultPatterns()
	}
	return &Normalizer{
		patterns:  patterns,
		limit:     limit,
		templates: make(map[string]struct{}),
	}
}

// Template applies every pattern in order and collapses whitespace.
// "GET /users/123" becomes "GET /users/<NUM>".
func (n *Normalizer) Template(name string) string {
	template := name
	for _, p := range n.patterns {
		template = p.Regex.ReplaceAllString(template, p.Placeholder)
	}
	return strings.Join(strings.Fields(template), " ")
}

// Normalize returns the template of name, enforcing the distinct-template
// limit.
func (n *Normalizer) Normalize(name string) string {
	template := n.Template(name)
	if n.limit <= 0 {
		return template
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.templates[template]; ok {
		return template
	}
	if len(n.templates) >= n.limit {
		return Overflow
	}
	n.templates[template] = struct{}{}
	return template
}

// Distinct returns how many templates have been admitted.
func (n *Normalizer) Distinct() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.templates)
}
