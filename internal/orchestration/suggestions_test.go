package orchestration

import (
	"strings"
	"testing"
)

func TestExtractSuggestionsBulleted(t *testing.T) {
	response := `Here is your blog post draft.

Suggestions:
- Add customer testimonials
- Tighten the introduction
- Link to the pricing page
- This fourth one should be dropped`

	got := extractSuggestions(response)
	if len(got) != 3 {
		t.Fatalf("expected 3 suggestions, got %d: %v", len(got), got)
	}
	if got[0] != "Add customer testimonials" || got[2] != "Link to the pricing page" {
		t.Errorf("unexpected suggestions: %v", got)
	}
}

func TestExtractSuggestionsNumbered(t *testing.T) {
	response := `Done.

Next steps:
1. Review the keyword list
2) Update the meta descriptions`

	got := extractSuggestions(response)
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %v", got)
	}
	if got[0] != "Review the keyword list" || got[1] != "Update the meta descriptions" {
		t.Errorf("unexpected suggestions: %v", got)
	}
}

func TestExtractSuggestionsHeadingVariants(t *testing.T) {
	for _, heading := range []string{"Suggestions", "suggestion", "Next Steps", "Follow-up", "follow ups", "## Suggestions"} {
		response := "Answer.\n\n" + heading + ":\n- Do the thing\n"
		got := extractSuggestions(response)
		if len(got) != 1 || got[0] != "Do the thing" {
			t.Errorf("heading %q: got %v", heading, got)
		}
	}
}

func TestExtractSuggestionsStopsAtProse(t *testing.T) {
	response := `Suggestions:
- First idea

This paragraph ends the section.
- Not a suggestion anymore`

	got := extractSuggestions(response)
	if len(got) != 1 || got[0] != "First idea" {
		t.Errorf("section boundary not respected: %v", got)
	}
}

func TestExtractSuggestionsNoSection(t *testing.T) {
	if got := extractSuggestions("Just an answer with no trailing section."); len(got) != 0 {
		t.Errorf("expected no suggestions, got %v", got)
	}
}

func TestFallbackSuggestions(t *testing.T) {
	got := fallbackSuggestions("Blog Writer", "content")
	if len(got) != 3 {
		t.Fatalf("expected 3 synthesized suggestions, got %d", len(got))
	}
	foundName := false
	for _, s := range got {
		if s == "" {
			t.Error("empty synthesized suggestion")
		}
		if strings.Contains(s, "Blog Writer") {
			foundName = true
		}
	}
	if !foundName {
		t.Errorf("synthesized suggestions never reference the capability: %v", got)
	}
}
