package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFenceServiceResult_OnlyFencesReadStringResults(t *testing.T) {
	assert.Equal(t, "plain value", fenceServiceResult("write_file", false, "plain value"))
	assert.Equal(t, 42, fenceServiceResult("fetch_url", true, 42))

	fenced, ok := fenceServiceResult("fetch_url", true, "page body").(string)
	require.True(t, ok)
	assert.Contains(t, fenced, "SECURITY")
	assert.True(t, strings.Contains(fenced, "page body"))
}
