package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// authChannelCmd registers the per-channel setup verb (`auth-<channel>`).
// Concrete channel adapters — the Telegram bot token flow, the WhatsApp QR
// pairing flow, and so on — are explicitly a composition-root concern: the
// core treats them uniformly via the Channel interface and ships no
// adapter itself, so the verb here only documents the contract a bundling
// build must satisfy: obtain whatever credential the channel needs and
// leave it where runHost's channel registration step can find it.
func authChannelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth-<channel> <channel-name>",
		Short: "Run a channel adapter's credential setup flow",
		Long: "auth-<channel> is a per-channel setup verb. This core binary " +
			"registers no concrete channel adapter, so it has nothing to " +
			"authenticate here — a composition root that bundles an adapter " +
			"(e.g. an internal/channels/telegram package) replaces this stub " +
			"with its own Use string and RunE.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("auth-%s: no channel adapter is bundled in this build", args[0])
		},
	}
}
