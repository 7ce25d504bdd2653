package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var stashCmd = &cobra.Command{
	Use:   "stash",
	Short: "Operate on the stash stack",
}

var stashPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Capture staged changes as a new stash entry",
	RunE:  runStashPush,
}

var stashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stash entries, most recent first",
	RunE:  runStashList,
}

var stashApplyCmd = &cobra.Command{
	Use:   "apply [<n>]",
	Short: "Re-stage the nth stash entry's files without removing it",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStashApply,
}

var stashDropCmd = &cobra.Command{
	Use:   "drop [<n>]",
	Short: "Remove the nth stash entry",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStashDrop,
}

var stashPopCmd = &cobra.Command{
	Use:   "pop [<n>]",
	Short: "Apply then drop the nth stash entry",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStashPop,
}

func init() {
	stashPushCmd.Flags().StringP("message", "m", "stash", "stash entry message")
	stashCmd.AddCommand(stashPushCmd, stashListCmd, stashApplyCmd, stashDropCmd, stashPopCmd)
	rootCmd.AddCommand(stashCmd)
}

func stashIndex(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	return strconv.Atoi(args[0])
}

func runStashPush(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	message, _ := cmd.Flags().GetString("message")
	timestamp, tz := nowStamp()
	commit, err := r.StashPush(message, who(r), timestamp, tz)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved working directory state: %s\n", commit.ID[:12])
	return nil
}

func runStashList(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	entries, err := r.StashList()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for i, id := range entries {
		fmt.Fprintf(out, "stash@{%d}: %s\n", i, id[:12])
	}
	return nil
}

func runStashApply(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	n, err := stashIndex(args)
	if err != nil {
		return err
	}
	return r.StashApply(n)
}

func runStashDrop(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	n, err := stashIndex(args)
	if err != nil {
		return err
	}
	return r.StashDrop(n)
}

func runStashPop(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	n, err := stashIndex(args)
	if err != nil {
		return err
	}
	return r.StashPop(n)
}
