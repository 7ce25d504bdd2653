package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rybkr/dotman/internal/dotmanerr"
)

var pushCmd = &cobra.Command{
	Use:   "push [<remote>] [<branch>]",
	Short: "Push the current branch to a remote through its transport adapter",
	Args:  cobra.MaximumNArgs(2),
	RunE:  runPush,
}

var pullCmd = &cobra.Command{
	Use:   "pull [<remote>] [<branch>]",
	Short: "Fetch and integrate a branch from a remote through its transport adapter",
	Args:  cobra.MaximumNArgs(2),
	RunE:  runPull,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [<remote>] [<branch>]",
	Short: "Fetch a branch from a remote through its transport adapter",
	Args:  cobra.MaximumNArgs(2),
	RunE:  runFetch,
}

func init() {
	pushCmd.Flags().Bool("force", false, "overwrite the remote branch unconditionally")
	pushCmd.Flags().Bool("force-with-lease", false, "overwrite only if the remote still matches the last known state")

	rootCmd.AddCommand(pushCmd, pullCmd, fetchCmd)
}

// errNoAdapter is returned by every sync command: the remote
// transport is an external collaborator this repository never
// implements a concrete instance of. internal/repo.Push/Fetch/Pull
// take a remoteadapter.Adapter parameter and work correctly against
// any real implementation plugged in here.
var errNoAdapter = fmt.Errorf("dotman: no remote transport adapter configured: %w", dotmanerr.ErrPrecondition)

func remoteAndBranch(args []string) (string, string) {
	var remote, branch string
	if len(args) > 0 {
		remote = args[0]
	}
	if len(args) > 1 {
		branch = args[1]
	}
	if remote == "" {
		remote = "origin"
	}
	return remote, branch
}

func runPush(cmd *cobra.Command, args []string) error {
	if _, err := openRepo(); err != nil {
		return err
	}
	return errNoAdapter
}

func runPull(cmd *cobra.Command, args []string) error {
	if _, err := openRepo(); err != nil {
		return err
	}
	return errNoAdapter
}

func runFetch(cmd *cobra.Command, args []string) error {
	if _, err := openRepo(); err != nil {
		return err
	}
	return errNoAdapter
}
