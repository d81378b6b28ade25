package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCommand(t *testing.T) {
	cases := []struct {
		name    string
		command string
		want    CommandClass
	}{
		{"single safe", "ls -la", ClassSafe},
		{"pipeline all safe", "cat file.txt | grep foo | sort", ClassSafe},
		{"network single", "curl https://example.com", ClassNetwork},
		{"network in chain", "echo hi && curl https://example.com", ClassNetwork},
		{"network in subshell", "echo $(curl https://example.com)", ClassNetwork},
		{"multi-token network", "pip install requests", ClassNetwork},
		{"bash dash c", "bash -c 'echo hi'", ClassNetwork},
		{"env prefix safe", "LC_ALL=C strings binary", ClassSafe},
		{"unknown tool", "terraform apply", ClassUnknown},
		{"empty", "", ClassUnknown},
		{"mixed safe and unknown", "cat file | some-random-tool", ClassUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyCommand(tc.command))
		})
	}
}
