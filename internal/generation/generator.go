// Package generation drafts suggested clause language for gaps the
// analyzer finds. The Generator interface keeps the LLM behind an
// abstraction; the analyzer falls back to rule example text when no
// generator is configured or a call fails.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyPrompt      = errors.New("prompt cannot be empty")
	ErrGenerationFailed = errors.New("generation failed")
)

// Request describes one drafting task.
type Request struct {
	ClauseType  string
	Perspective string
	Tier        string

	// Template is the rule's rewrite template, when the rule carries one.
	Template string

	// ExampleText is the rule's reference language, included as grounding.
	ExampleText string

	// Context is surrounding document text to match tone and defined terms.
	Context string
}

// Generator drafts clause text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Close() error
}

// Func adapts a function to the Generator interface, for tests and simple
// deployments.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

func (f Func) Close() error { return nil }

// BuildPrompt renders the drafting prompt for a request.
func BuildPrompt(req Request) (string, error) {
	if req.ClauseType == "" {
		return "", fmt.Errorf("%w: clause type is required", ErrEmptyPrompt)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Draft a %s clause for a legal agreement, written from the %s party's position.\n", req.ClauseType, req.Perspective)
	if req.Tier != "" {
		fmt.Fprintf(&b, "The clause should reflect the %s standard of the playbook.\n", req.Tier)
	}
	if req.Template != "" {
		fmt.Fprintf(&b, "\nFollow this template, filling in the bracketed parts:\n%s\n", req.Template)
	}
	if req.ExampleText != "" {
		fmt.Fprintf(&b, "\nReference language:\n%s\n", req.ExampleText)
	}
	if req.Context != "" {
		fmt.Fprintf(&b, "\nMatch the tone and defined terms of this surrounding text:\n%s\n", req.Context)
	}
	b.WriteString("\nReturn only the clause text, with no commentary.")
	return b.String(), nil
}
