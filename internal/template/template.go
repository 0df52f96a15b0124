/*
Package template fills response templates.

Placeholders are written {name}. Fill is literal text substitution: no
escaping, no expressions, and substituted values are never rescanned, so a
value that itself contains {other} stays as written.
*/
package template

import (
	"regexp"
	"slices"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Fill replaces every {key} in body with values[key] for each key present in
// values. Placeholders without a value are left untouched.
func Fill(body string, values map[string]string) string {
	if len(values) == 0 || body == "" {
		return body
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", values[k])
	}

	// strings.Replacer makes a single left-to-right pass and never
	// revisits replaced text.
	return strings.NewReplacer(pairs...).Replace(body)
}

// Variables returns the placeholder names in body in order of first appearance.
func Variables(body string) []string {
	var names []string
	seen := map[string]bool{}

	for _, m := range placeholderRe.FindAllStringSubmatch(body, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}

	return names
}

// Missing returns the placeholders in body that values does not supply.
func Missing(body string, values map[string]string) []string {
	var missing []string
	for _, name := range Variables(body) {
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
