package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRebuilder struct {
	err    error
	stderr string
}

func (r fakeRebuilder) Rebuild(ctx context.Context) (string, error) { return r.stderr, r.err }

type fakeTerminator struct{ called bool }

func (t *fakeTerminator) RequestShutdown() { t.called = true }

func TestRedeploy_WritesContinuationAndRequestsShutdown(t *testing.T) {
	dataRoot := t.TempDir()
	term := &fakeTerminator{}
	c := New(dataRoot, fakeRebuilder{}, term)

	tokens := map[string]string{"acme": "tok-1"}
	require.NoError(t, c.Redeploy(context.Background(), "chat-1", tokens, "hash-abc"))
	assert.True(t, term.called)

	_, err := os.Stat(filepath.Join(dataRoot, continuationFilename))
	require.NoError(t, err)

	cont, err := c.LoadContinuation()
	require.NoError(t, err)
	require.NotNil(t, cont)
	assert.Equal(t, "chat-1", cont.ChatID)
	assert.Equal(t, "tok-1", cont.SessionTokens["acme"])
	assert.Equal(t, "hash-abc", cont.ConfigHash)

	// LoadContinuation deletes the file: a second read sees no pending deploy.
	cont2, err := c.LoadContinuation()
	require.NoError(t, err)
	assert.Nil(t, cont2)
}

func TestRedeploy_RebuildFailureSkipsShutdown(t *testing.T) {
	dataRoot := t.TempDir()
	term := &fakeTerminator{}
	c := New(dataRoot, fakeRebuilder{err: assert.AnError, stderr: "boom"}, term)

	err := c.Redeploy(context.Background(), "chat-1", nil, "hash")
	require.Error(t, err)
	assert.False(t, term.called)

	_, statErr := os.Stat(filepath.Join(dataRoot, continuationFilename))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoadContinuation_ColdStartReturnsNil(t *testing.T) {
	c := New(t.TempDir(), fakeRebuilder{}, &fakeTerminator{})
	cont, err := c.LoadContinuation()
	require.NoError(t, err)
	assert.Nil(t, cont)
}
