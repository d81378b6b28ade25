// Package cop implements the secondary classifier the security gate escalates
// to when a write touches corruption-tainted input and the service's
// dangerous_writes bit is set to scrutiny. Cop looks at a summary of the
// write, never the raw payload, and returns a single flagged/reason verdict.
// Any failure to reach a verdict fails open — Cop never blocks a decision it
// could not render.
package cop

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/agenthost/internal/providers"
)

// Verdict is Cop's judgment on a single write.
type Verdict struct {
	Flagged bool   `json:"flagged"`
	Reason  string `json:"reason"`
}

// Cop classifies a prospective dangerous write.
type Cop interface {
	Classify(ctx context.Context, summary, excerpt string) Verdict
}

const systemPrompt = `You are a security classifier reviewing a single write operation a sandboxed agent wants to perform. You will be given a short summary of the write and an excerpt of its content. Decide whether the write looks like it is exfiltrating secrets, planting malicious content, or otherwise abusing trust.

Respond with exactly one JSON object and nothing else:
{"flagged": true or false, "reason": "one short sentence"}`

const classifyTimeout = 10 * time.Second

// llmCop is the default Cop, backed by a single-shot chat provider.
type llmCop struct {
	provider providers.Provider
	model    string
}

// New returns a Cop backed by the given provider. model may be empty to use
// the provider's own default.
func New(provider providers.Provider, model string) Cop {
	return &llmCop{provider: provider, model: model}
}

func (c *llmCop) Classify(ctx context.Context, summary, excerpt string) Verdict {
	if c.provider == nil {
		return failOpen("no provider configured")
	}

	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	userContent := "Summary: " + summary
	if excerpt != "" {
		userContent += "\n\nExcerpt:\n" + excerpt
	}

	resp, err := c.provider.Chat(ctx, providers.ChatRequest{
		Model:     c.model,
		MaxTokens: 200,
		Messages: []providers.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
	})
	if err != nil {
		slog.Warn("cop.transport_error", "error", err)
		return failOpen("transport error")
	}

	verdict, err := parseVerdict(resp.Content)
	if err != nil {
		slog.Warn("cop.parse_error", "error", err, "content", resp.Content)
		return failOpen("parse error")
	}
	return verdict
}

// parseVerdict extracts the strict JSON verdict from the model's reply,
// tolerating a markdown code fence wrapped around it.
func parseVerdict(content string) (Verdict, error) {
	content = stripCodeFence(strings.TrimSpace(content))

	var v Verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return Verdict{}, err
	}
	return v, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func failOpen(kind string) Verdict {
	return Verdict{Flagged: false, Reason: "Cop error: " + kind}
}
