package assistant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// FallbackReply is the one user-facing sentence every orchestrator
// failure collapses to.  Callers render it instead of surfacing raw
// vendor errors.
const FallbackReply = "I'm sorry, I'm having trouble connecting right now. Please try again in a moment."

// Default polling parameters for a run.
const (
	DefaultPollInterval = time.Second
	DefaultRunTimeout   = 60 * time.Second
)

// Turn is one prior exchange replayed into a fresh vendor thread so
// the assistant sees the conversation context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// citationRe matches the bracketed citation artifacts the vendor
// leaves in reply text, e.g. [3:2*source.txt] or [1:0+notes.txt].
var citationRe = regexp.MustCompile(`\[\d+:\d+[*+][^\[\]]*\]`)

// Orchestrator turns a user message plus conversation history into
// assistant text.  Each turn uses a fresh vendor thread: the history
// is replayed into it, the new message appended, and the resulting
// run polled to completion.  No local persistence happens here; that
// is the caller's responsibility.
type Orchestrator struct {
	client      *Client
	assistantID string

	// PollInterval and RunTimeout default to the package constants;
	// tests shrink them.
	PollInterval time.Duration
	RunTimeout   time.Duration
}

// NewOrchestrator builds an Orchestrator over the given client and
// assistant id.
func NewOrchestrator(client *Client, assistantID string) *Orchestrator {
	return &Orchestrator{
		client:       client,
		assistantID:  assistantID,
		PollInterval: DefaultPollInterval,
		RunTimeout:   DefaultRunTimeout,
	}
}

// Configured reports whether the vendor credentials are present.
func (o *Orchestrator) Configured() bool {
	return o.client != nil && o.client.apiKey != "" && o.assistantID != ""
}

// GenerateReply obtains assistant text for the given user message.
// history holds the prior non-welcome turns and is replayed into the
// fresh thread before the new message.  Failure cases: missing
// credentials, run failure (vendor code included, "unknown" when
// absent), requires_action (cancelled, unsupported), timeout after
// RunTimeout, and an empty reply; all are returned as errors for the
// caller to collapse into FallbackReply.
func (o *Orchestrator) GenerateReply(ctx context.Context, userMessage string, history []Turn) (string, error) {
	if !o.Configured() {
		return "", errors.New("assistant credentials are not configured")
	}

	thread, err := o.client.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	for _, t := range history {
		role := t.Role
		if role != "user" {
			// The vendor thread API only accepts user/assistant roles.
			role = "assistant"
		}
		if err := o.client.AddMessage(ctx, thread.ID, role, t.Content); err != nil {
			return "", fmt.Errorf("replay history: %w", err)
		}
	}
	if err := o.client.AddMessage(ctx, thread.ID, "user", userMessage); err != nil {
		return "", fmt.Errorf("post message: %w", err)
	}

	run, err := o.client.StartRun(ctx, thread.ID, o.assistantID)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}

	run, err = pollUntil(ctx, o.PollInterval, o.RunTimeout,
		func(ctx context.Context) (Run, error) {
			return o.client.GetRun(ctx, thread.ID, run.ID)
		},
		func(r Run) bool {
			switch r.Status {
			case RunCompleted, RunFailed, RunRequiresAction:
				return true
			}
			return false
		})
	if err != nil {
		if errors.Is(err, ErrPollTimeout) {
			return "", errors.New("assistant response timed out")
		}
		return "", err
	}

	switch run.Status {
	case RunFailed:
		code := "unknown"
		if run.LastError != nil && run.LastError.Code != "" {
			code = run.LastError.Code
		}
		return "", fmt.Errorf("run failed with reason: %s", code)
	case RunRequiresAction:
		// Function calling is not supported; cancel so the run does
		// not sit pending on the vendor side.
		_ = o.client.CancelRun(ctx, thread.ID, run.ID)
		return "", errors.New("assistant requires functions that aren't implemented")
	}

	msgs, err := o.client.ListMessages(ctx, thread.ID)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	// The API returns newest first; take the most recent assistant
	// message and concatenate its text blocks.
	for _, m := range msgs {
		if m.Role != "assistant" {
			continue
		}
		var b strings.Builder
		for _, c := range m.Content {
			if c.Type == "text" && c.Text != nil {
				b.WriteString(c.Text.Value)
			}
		}
		return stripCitations(b.String()), nil
	}
	return "", errors.New("no assistant response found")
}

// stripCitations removes citation-reference artifacts from reply text.
func stripCitations(s string) string {
	return citationRe.ReplaceAllString(s, "")
}
