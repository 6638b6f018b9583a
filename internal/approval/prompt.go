package approval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
)

// AbortedReason is the rejection reason when the user aborts the prompt.
const AbortedReason = "User aborted the approval prompt."

// PromptRequester asks for approval on the terminal with a huh confirm form.
type PromptRequester struct {
	// Accessible switches huh into its line-based mode, which also works
	// when stdin is not a TTY.
	Accessible bool

	// Input and Output override the terminal streams. Used by tests.
	Input  io.Reader
	Output io.Writer
}

// RequestApproval implements Requester.
func (p *PromptRequester) RequestApproval(ctx context.Context, req Request) (Response, error) {
	approved := false
	confirm := huh.NewConfirm().
		Title(promptTitle(req)).
		Description(promptDescription(req)).
		Affirmative("Approve").
		Negative("Reject").
		Value(&approved)

	form := huh.NewForm(huh.NewGroup(confirm)).WithAccessible(p.Accessible)
	if p.Input != nil {
		form = form.WithInput(p.Input)
	}
	if p.Output != nil {
		form = form.WithOutput(p.Output)
	}

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return Response{Approved: false, Reason: AbortedReason}, nil
		}
		return Response{}, fmt.Errorf("approval prompt: %w", err)
	}
	if !approved {
		return Response{Approved: false, Reason: DefaultRejectionReason}, nil
	}
	return Response{Approved: true}, nil
}

// DefaultRejectionReason is used when the user rejects without a reason.
const DefaultRejectionReason = "User rejected the operation."

func promptTitle(req Request) string {
	if req.Dangerous {
		return fmt.Sprintf("Run %s? (dangerous)", req.ToolName)
	}
	return fmt.Sprintf("Run %s?", req.ToolName)
}

func promptDescription(req Request) string {
	var b strings.Builder
	if req.Description != "" {
		b.WriteString(req.Description)
	}
	if len(req.Arguments) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("arguments: ")
		b.Write(req.Arguments)
	}
	return b.String()
}

var _ Requester = (*PromptRequester)(nil)
