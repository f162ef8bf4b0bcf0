package orchestration

import (
	"fmt"
	"regexp"
	"strings"
)

// maxSuggestions caps how many follow-up suggestions a result carries.
const maxSuggestions = 3

var (
	suggestionHeading = regexp.MustCompile(`(?i)^\s*(?:#+\s*|\*\*)?(?:suggestions?|next steps?|follow[- ]?ups?)\b`)
	bulletLine        = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
)

// extractSuggestions pulls up to three follow-up suggestions from a
// response by locating a suggestions/next-steps heading and collecting the
// bulleted or numbered lines that follow it. This is best-effort text
// matching; callers must be prepared for the empty result.
func extractSuggestions(response string) []string {
	lines := strings.Split(response, "\n")

	inSection := false
	var out []string
	for _, line := range lines {
		if suggestionHeading.MatchString(line) {
			inSection = true
			// A heading may carry inline suggestions after a colon.
			if idx := strings.Index(line, ":"); idx >= 0 {
				if rest := strings.TrimSpace(line[idx+1:]); rest != "" {
					out = appendSuggestion(out, rest)
				}
			}
			continue
		}
		if !inSection {
			continue
		}
		if m := bulletLine.FindStringSubmatch(line); m != nil {
			out = appendSuggestion(out, m[1])
			if len(out) == maxSuggestions {
				break
			}
			continue
		}
		// A blank line inside the section is tolerated; any other
		// non-bullet text ends it.
		if strings.TrimSpace(line) != "" {
			break
		}
	}
	return out
}

func appendSuggestion(list []string, s string) []string {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*"))
	if s == "" || len(list) >= maxSuggestions {
		return list
	}
	return append(list, s)
}

// fallbackSuggestions synthesizes generic follow-ups referencing the
// capability when the response carried none.
func fallbackSuggestions(name, category string) []string {
	if name == "" {
		name = "this assistant"
	}
	if category == "" {
		category = "marketing"
	}
	return []string{
		fmt.Sprintf("Ask %s to refine or expand this result", name),
		fmt.Sprintf("Request another %s task with more specific goals", category),
		fmt.Sprintf("Share more context so %s can tailor its next answer", name),
	}
}
