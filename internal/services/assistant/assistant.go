// Package assistant answers chat prompts with a generative-text endpoint and
// falls back to canned replies when the endpoint is unavailable.
package assistant

import (
	"context"
	"log"
	"strings"
	"time"

	apperrors "github.com/louisbranch/taskflow/internal/platform/errors"
	"github.com/louisbranch/taskflow/internal/platform/timeouts"
)

// maxContextTasks caps how many task titles go into the system prompt.
const maxContextTasks = 20

const basePrompt = "You are a friendly productivity assistant. Answer in a few short sentences with practical advice."

// Reply is the assistant's answer to one prompt.
type Reply struct {
	Text string
	// Fallback is set when Text is a canned reply.
	Fallback bool
}

// Assistant answers prompts statelessly.
type Assistant struct {
	generator Generator
	params    Params
	timeout   time.Duration
}

// New builds an assistant. A nil generator always falls back.
func New(generator Generator, params Params) *Assistant {
	return &Assistant{generator: generator, params: params, timeout: timeouts.Generate}
}

// Reply answers prompt. openTasks are the caller's open task titles, used to
// ground the answer. Endpoint failures never surface as errors.
func (a *Assistant) Reply(ctx context.Context, prompt string, openTasks []string) (Reply, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Reply{}, apperrors.New(apperrors.CodeAssistantPromptEmpty, "prompt is required")
	}
	if a == nil || a.generator == nil {
		return Reply{Text: Fallback(prompt), Fallback: true}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	text, err := a.generator.Generate(callCtx, Request{
		System: SystemPrompt(openTasks),
		Prompt: prompt,
		Params: a.params,
	})
	if err != nil {
		log.Printf("assistant: generate failed, using fallback err=%v", err)
		return Reply{Text: Fallback(prompt), Fallback: true}, nil
	}
	return Reply{Text: text}, nil
}

// SystemPrompt builds the instruction text from open task titles.
func SystemPrompt(openTasks []string) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	count := 0
	for _, title := range openTasks {
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		if count == 0 {
			b.WriteString("\n\nThe user's open tasks:")
		}
		b.WriteString("\n- ")
		b.WriteString(title)
		count++
		if count == maxContextTasks {
			break
		}
	}
	return b.String()
}
