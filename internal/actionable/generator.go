// Package actionable pulls action items out of a generated meeting summary.
package actionable

import (
	"regexp"
	"strings"
)

var (
	headingRe = regexp.MustCompile(`(?i)^(#+\s*)?(\*\*)?\s*(action items?|next steps|to-?dos?)\s*:?\s*(\*\*)?\s*:?$`)
	bulletRe  = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.*)$`)
	prefixRe  = regexp.MustCompile(`(?i)^(?:\*\*)?action(?:\*\*)?\s*:(?:\*\*)?\s*(.+)$`)
)

// Extract returns the action items found in summary, in order and without
// duplicates. Items are bullet or numbered lines under an "Action Items"
// heading, or any line prefixed with "Action:".
func Extract(summary string) []string {
	var items []string
	seen := map[string]bool{}
	add := func(s string) {
		s = cleanItem(s)
		if s == "" || seen[strings.ToLower(s)] {
			return
		}
		seen[strings.ToLower(s)] = true
		items = append(items, s)
	}

	inSection := false
	sectionItems := 0
	for _, raw := range strings.Split(summary, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if headingRe.MatchString(line) {
			inSection = true
			sectionItems = 0
			continue
		}

		body := line
		if m := bulletRe.FindStringSubmatch(line); m != nil {
			body = strings.TrimSpace(m[1])
			if m := prefixRe.FindStringSubmatch(body); m != nil {
				add(m[1])
				continue
			}
			if inSection {
				add(body)
				sectionItems++
			}
			continue
		}

		if m := prefixRe.FindStringSubmatch(body); m != nil {
			add(m[1])
			continue
		}

		// Any other text ends the section once it has produced items.
		if inSection && (sectionItems > 0 || strings.HasPrefix(line, "#")) {
			inSection = false
		}
	}
	return items
}

func cleanItem(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[ ] ")
	s = strings.TrimPrefix(s, "[x] ")
	return strings.TrimSpace(s)
}
