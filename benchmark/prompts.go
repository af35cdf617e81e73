// prompts.go - Prompt-Sweeps aus Vorlagen
package benchmark

import (
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// ExpandPrompts bildet das kartesische Produkt aller {name}-Platzhalter in
// template. Die Reihenfolge folgt dem ersten Auftreten im Template, der
// erste Platzhalter variiert am langsamsten. Platzhalter ohne Werte bleiben
// stehen.
func ExpandPrompts(template string, vars map[string][]string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholder.FindAllStringSubmatch(template, -1) {
		name := m[1]
		if seen[name] || len(vars[name]) == 0 {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}

	prompts := []string{template}
	for _, name := range names {
		token := "{" + name + "}"
		next := make([]string, 0, len(prompts)*len(vars[name]))
		for _, p := range prompts {
			for _, v := range vars[name] {
				next = append(next, strings.ReplaceAll(p, token, v))
			}
		}
		prompts = next
	}
	return prompts
}
