package cmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveConfigPath_FlagTakesPrecedence(t *testing.T) {
	t.Setenv("AGENTHOST_CONFIG", "/env/config.json5")
	cfgFile = "/flag/config.json5"
	defer func() { cfgFile = "" }()

	assert.Equal(t, "/flag/config.json5", resolveConfigPath())
}

func TestResolveConfigPath_FallsBackToEnvThenDefault(t *testing.T) {
	cfgFile = ""
	os.Unsetenv("AGENTHOST_CONFIG")
	assert.Equal(t, "config.json5", resolveConfigPath())

	t.Setenv("AGENTHOST_CONFIG", "/env/config.json5")
	assert.Equal(t, "/env/config.json5", resolveConfigPath())
}
