package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/agenthost/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "agenthost",
	Short: "agenthost — multi-tenant agent orchestration host",
	Long: "agenthost runs the host side of the file-backed IPC contract between " +
		"a chat surface and one sandboxed worker process per workspace: the " +
		"per-workspace queue, the security gate, the approval and ask_user " +
		"state machines, and the scheduler. One foreground verb (run) plus " +
		"per-channel setup verbs (auth-<channel>).",
	Run: func(cmd *cobra.Command, args []string) {
		runHost()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json5 or $AGENTHOST_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(authChannelCmd())
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the host in the foreground",
		Run: func(cmd *cobra.Command, args []string) {
			runHost()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agenthost %s\n", Version)
		},
	}
}

// resolveConfigPath implements flag → env var → default precedence.
func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("AGENTHOST_CONFIG"); v != "" {
		return v
	}
	return "config.json5"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
