package orchestration

import (
	"fmt"
	"strings"

	"github.com/marketbeam/orchestrator/internal/capability"
)

// historyWindow is how many trailing conversation messages a prompt carries.
const historyWindow = 5

// trailingInstruction is appended to every prompt so responses come back in
// a shape the suggestion parser can work with.
const trailingInstruction = "Respond with your answer, include any structured data that supports it, " +
	"and finish with a \"Suggestions:\" section listing 2-3 follow-up suggestions."

// buildPrompt assembles the completion prompt for one capability invocation:
// system instruction, capability identity, features, recent conversation,
// prior step outputs, the current input, and the trailing instruction.
func buildPrompt(desc *capability.Capability, taskCtx *Context, input string) string {
	var b strings.Builder

	if desc.SystemPrompt != "" {
		b.WriteString(desc.SystemPrompt)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "You are acting as %s", desc.Name)
	if desc.Category != "" {
		fmt.Fprintf(&b, " (%s)", desc.Category)
	}
	b.WriteString(".")
	if desc.Description != "" {
		b.WriteString(" ")
		b.WriteString(desc.Description)
	}
	b.WriteString("\n")

	if len(desc.Features) > 0 {
		b.WriteString("Capabilities:\n")
		for _, f := range desc.Features {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	if len(taskCtx.History) > 0 {
		recent := taskCtx.History
		if len(recent) > historyWindow {
			recent = recent[len(recent)-historyWindow:]
		}
		b.WriteString("\nRecent conversation:\n")
		for _, msg := range recent {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
	}

	if len(taskCtx.PreviousResults) > 0 {
		b.WriteString("\nOutput from previous steps:\n")
		for _, r := range taskCtx.PreviousResults {
			if r.Success {
				fmt.Fprintf(&b, "[%s]\n%s\n", r.CapabilityID, r.Response)
			}
		}
	}

	b.WriteString("\nRequest: ")
	b.WriteString(input)
	b.WriteString("\n\n")
	b.WriteString(trailingInstruction)
	return b.String()
}
