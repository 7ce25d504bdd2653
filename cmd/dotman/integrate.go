package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rybkr/dotman/internal/repo"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <ref>",
	Short: "Integrate another branch or commit into the current branch",
	Args:  cobra.ExactArgs(1),
	RunE:  runMerge,
}

var rebaseCmd = &cobra.Command{
	Use:   "rebase [<upstream>]",
	Short: "Replay the current branch's commits onto <upstream>",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRebase,
}

var revertCmd = &cobra.Command{
	Use:   "revert <ref>",
	Short: "Produce a new commit that inverts <ref>'s changes",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevert,
}

func init() {
	mergeCmd.Flags().Bool("no-ff", false, "always create a merge commit, even if a fast-forward is possible")
	mergeCmd.Flags().StringP("message", "m", "", "accepted but not used; the merge commit message is always generated")

	rebaseCmd.Flags().Bool("continue", false, "resume a conflicted rebase after resolving its markers")
	rebaseCmd.Flags().Bool("abort", false, "restore the repository to its pre-rebase state")
	rebaseCmd.Flags().Bool("skip", false, "discard the current commit and move to the next")

	rootCmd.AddCommand(mergeCmd, rebaseCmd, revertCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	noFF, _ := cmd.Flags().GetBool("no-ff")
	timestamp, tz := nowStamp()

	result, err := r.Merge(args[0], who(r), noFF, timestamp, tz)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case result.AlreadyUpToDate:
		fmt.Fprintln(out, "Already up to date.")
	case result.FastForward:
		fmt.Fprintf(out, "Fast-forward to %s\n", result.Commit.ID[:12])
	case len(result.ConflictPaths) > 0:
		fmt.Fprintf(out, "Merge made with %d conflicted path(s):\n", len(result.ConflictPaths))
		for _, p := range result.ConflictPaths {
			fmt.Fprintf(out, "  %s\n", p)
		}
	default:
		fmt.Fprintf(out, "Merge commit %s\n", result.Commit.ID[:12])
	}
	return nil
}

func runRebase(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	timestamp, tz := nowStamp()

	cont, _ := cmd.Flags().GetBool("continue")
	abort, _ := cmd.Flags().GetBool("abort")
	skip, _ := cmd.Flags().GetBool("skip")

	switch {
	case abort:
		return r.AbortRebase(who(r))
	case cont:
		result, err := r.ContinueRebase(who(r), timestamp, tz)
		if err != nil {
			return err
		}
		return printRebaseOutcome(cmd, result)
	case skip:
		result, err := r.SkipRebase(who(r), timestamp, tz)
		if err != nil {
			return err
		}
		return printRebaseOutcome(cmd, result)
	default:
		if len(args) != 1 {
			return fmt.Errorf("dotman: rebase requires an <upstream> argument")
		}
		result, err := r.Rebase(args[0], who(r), timestamp, tz)
		if err != nil {
			return err
		}
		return printRebaseOutcome(cmd, result)
	}
}

func printRebaseOutcome(cmd *cobra.Command, outcome *repo.RebaseOutcome) error {
	out := cmd.OutOrStdout()
	if outcome.Conflicted {
		fmt.Fprintf(out, "Rebase stopped with %d conflicted path(s):\n", len(outcome.ConflictPaths))
		for _, p := range outcome.ConflictPaths {
			fmt.Fprintf(out, "  %s\n", p)
		}
		return nil
	}
	fmt.Fprintf(out, "Rebase finished, HEAD at %s\n", outcome.FinalHead[:12])
	return nil
}

func runRevert(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	timestamp, tz := nowStamp()
	commit, err := r.Revert(args[0], who(r), timestamp, tz)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", commit.ID[:12], commit.Message)
	return nil
}
