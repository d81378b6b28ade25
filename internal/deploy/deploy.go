// Package deploy implements the redeploy/lifecycle flow: rebuilding
// the worker image, writing a deploy_continuation.json the next process
// start replays, and requesting the host's own graceful termination.
package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/agenthost/internal/fsatomic"
)

const continuationFilename = "deploy_continuation.json"

// Continuation is the payload written before a self-restart and replayed
// on the following startup.
type Continuation struct {
	ChatID         string            `json:"chat_id"`
	SessionTokens  map[string]string `json:"session_tokens"` // workspace_folder -> token
	ResumePrompt   string            `json:"resume_prompt"`
	ConfigHash     string            `json:"config_hash"`
	WrittenAt      time.Time         `json:"written_at"`
}

// BuildTimeout bounds the rebuild step: a bounded timeout with stderr
// surfaced on failure.
const BuildTimeout = 10 * time.Minute

// Rebuilder runs the worker image build. The concrete build command is a
// configuration detail (composition root); this package only bounds and
// reports it.
type Rebuilder interface {
	Rebuild(ctx context.Context) (stderr string, err error)
}

// ExecRebuilder runs a configured shell command as the rebuild step.
type ExecRebuilder struct {
	Command string
}

// Rebuild runs the configured command under BuildTimeout.
func (r ExecRebuilder) Rebuild(ctx context.Context) (string, error) {
	if r.Command == "" {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, BuildTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", r.Command)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("deploy: rebuild failed: %w", err)
	}
	return string(out), nil
}

// Terminator requests the current process's own graceful shutdown, e.g. by
// signalling itself or returning a stop from the run loop.
type Terminator interface {
	RequestShutdown()
}

// Controller drives one redeploy.
type Controller struct {
	dataRoot  string
	rebuilder Rebuilder
	term      Terminator
}

// New constructs a deploy Controller rooted at dataRoot (continuation file
// lives at dataRoot/deploy_continuation.json).
func New(dataRoot string, rebuilder Rebuilder, term Terminator) *Controller {
	return &Controller{dataRoot: dataRoot, rebuilder: rebuilder, term: term}
}

func (c *Controller) continuationPath() string {
	return filepath.Join(c.dataRoot, continuationFilename)
}

// Redeploy runs the full admin-only flow: rebuild, write the
// continuation, then request shutdown. The caller (router's Redeploy
// handler) has already checked the admin-only and trigger preconditions.
func (c *Controller) Redeploy(ctx context.Context, chatID string, sessionTokens map[string]string, configHash string) error {
	stderr, err := c.rebuilder.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("deploy: %w (stderr: %s)", err, truncate(stderr, 2000))
	}

	cont := Continuation{
		ChatID:        chatID,
		SessionTokens: sessionTokens,
		ResumePrompt:  "deployed, verifying health",
		ConfigHash:    configHash,
		WrittenAt:     time.Now().UTC(),
	}
	if err := fsatomic.WriteJSON(c.continuationPath(), cont); err != nil {
		return fmt.Errorf("deploy: write continuation: %w", err)
	}

	c.term.RequestShutdown()
	return nil
}

// LoadContinuation reads and deletes a pending continuation on startup, if
// one exists. A nil, nil return means this was a cold start with no
// pending redeploy.
func (c *Controller) LoadContinuation() (*Continuation, error) {
	path := c.continuationPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("deploy: read continuation: %w", err)
	}
	defer os.Remove(path)

	var cont Continuation
	if err := json.Unmarshal(data, &cont); err != nil {
		return nil, fmt.Errorf("deploy: decode continuation: %w", err)
	}
	return &cont, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...[truncated]"
}
