package backend

import (
	"context"
	"fmt"
	"strings"
)

// systemPrompt renders the persona and goal as a system message.
func systemPrompt(req Request) string {
	var b strings.Builder
	if req.Persona != "" {
		b.WriteString(req.Persona)
	}
	if req.Goal != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Your goal: ")
		b.WriteString(req.Goal)
	}
	return b.String()
}

// groundedInstructions is used by backends without native tool calling:
// every tool is queried with the instructions and the matches are appended
// as reference material.
func groundedInstructions(ctx context.Context, req Request) (string, error) {
	if len(req.Tools) == 0 {
		return req.Instructions, nil
	}

	var b strings.Builder
	b.WriteString(req.Instructions)
	b.WriteString("\n\n## Reference material\n")
	for _, t := range req.Tools {
		match, err := t.Query(ctx, req.Instructions)
		if err != nil {
			return "", fmt.Errorf("tool %s: %w", t.Name(), err)
		}
		fmt.Fprintf(&b, "\n### %s\n%s\n", t.Description(), match)
	}
	return b.String(), nil
}

// fullPrompt combines system and user text for single-channel backends.
func fullPrompt(system, user string) string {
	if system == "" {
		return user
	}
	return system + "\n\n---\n\n" + user
}
