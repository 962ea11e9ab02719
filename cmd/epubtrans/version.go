package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.gitRelease=... -X main.gitCommit=...".
var (
	gitRelease = "dev"
	gitCommit  = ""
)

func buildVersion() string {
	if gitRelease != "dev" {
		return gitRelease
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return gitRelease
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Needs no configuration.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "epubtrans %s\n", buildVersion())
		fmt.Fprintf(out, "  Go:     %s\n", runtime.Version())
		if gitCommit != "" {
			fmt.Fprintf(out, "  Commit: %s\n", gitCommit)
		}
	},
}
