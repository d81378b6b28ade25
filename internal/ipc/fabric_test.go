package ipc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/agenthost/internal/fsatomic"
	"github.com/nextlevelbuilder/agenthost/pkg/protocol"
)

func TestFabricDeliverInputAndWatchOutputOrdering(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFabric(dir, "acme")
	require.NoError(t, err)

	require.NoError(t, f.DeliverInput("hello"))
	require.NoError(t, f.DeliverInput("world"))

	entries, err := sortedNewFiles(f.Paths.Input())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var got []protocol.OutputEvent
	done := make(chan struct{})
	go func() {
		_ = f.WatchOutput(ctx, func(ev protocol.OutputEvent) {
			got = append(got, ev)
			if len(got) == 2 {
				close(done)
			}
		})
	}()

	require.NoError(t, writeOutputEvent(f, protocol.OutputEvent{Type: protocol.OutputText, Content: "a"}))
	require.NoError(t, writeOutputEvent(f, protocol.OutputEvent{Type: protocol.OutputText, Content: "b"}))

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("timed out waiting for output events")
	}
	require.Equal(t, "a", got[0].Content)
	require.Equal(t, "b", got[1].Content)
}

func TestFabricWriteResponseAtMostOnce(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFabric(dir, "acme")
	require.NoError(t, err)

	require.NoError(t, f.WriteResponse("req-1", protocol.TaskResponse{Result: "first"}))
	// A duplicate write for the same request id must not overwrite the
	// already-delivered reply: at-most-once per request id.
	require.NoError(t, f.WriteResponse("req-1", protocol.TaskResponse{Result: "second"}))

	resp, err := f.WaitForResponse(context.Background(), "req-1", time.Second)
	require.NoError(t, err)
	require.Equal(t, "first", resp.Result)
}

func TestCloseSentinelPreemptsLaterInput(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFabric(dir, "acme")
	require.NoError(t, err)

	require.NoError(t, f.DeliverInput("before close"))
	require.NoError(t, f.Close())

	names, err := sortedNewFiles(f.Paths.Input())
	require.NoError(t, err)
	require.Contains(t, names, "_close")
}

func writeOutputEvent(f *Fabric, ev protocol.OutputEvent) error {
	name := fsatomic.MonotonicJSONName()
	return fsatomic.WriteJSON(filepath.Join(f.Paths.Output(), name), ev)
}
