package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rybkr/dotman/internal/worktree"
)

var addCmd = &cobra.Command{
	Use:   "add <path...>",
	Short: "Stage files or directories for the next commit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAdd,
}

var rmCmd = &cobra.Command{
	Use:   "rm <path...>",
	Short: "Remove paths from the index without touching the working tree",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRm,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <path...>",
	Short: "Write paths' content from a source commit into the working tree",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRestore,
}

var resetCmd = &cobra.Command{
	Use:   "reset [<ref>]",
	Short: "Move the current branch and reconcile the index and/or working tree",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReset,
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove untracked files",
	RunE:  runClean,
}

func init() {
	restoreCmd.Flags().String("source", "HEAD", "commit to restore paths from")

	resetCmd.Flags().Bool("soft", false, "move HEAD/branch only")
	resetCmd.Flags().Bool("mixed", false, "move HEAD/branch and reset the index (default)")
	resetCmd.Flags().Bool("hard", false, "move HEAD/branch, the index, and the working tree")

	cleanCmd.Flags().BoolP("dry-run", "n", false, "show what would be removed without removing it")
	cleanCmd.Flags().BoolP("force", "f", false, "actually remove untracked files")

	rootCmd.AddCommand(addCmd, rmCmd, restoreCmd, resetCmd, cleanCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	return r.Add(args)
}

func runRm(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	return r.Rm(args)
}

func runRestore(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	source, _ := cmd.Flags().GetString("source")
	return r.Restore(args, source)
}

func runReset(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	target := "HEAD"
	if len(args) > 0 {
		target = args[0]
	}

	mode := worktree.ResetMixed
	soft, _ := cmd.Flags().GetBool("soft")
	hard, _ := cmd.Flags().GetBool("hard")
	switch {
	case soft:
		mode = worktree.ResetSoft
	case hard:
		mode = worktree.ResetHard
	}

	return r.Reset(target, who(r), mode)
}

func runClean(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	force, _ := cmd.Flags().GetBool("force")
	if !dryRun && !force {
		return fmt.Errorf("dotman: clean requires -n (dry run) or -f (force)")
	}

	removed, err := r.Clean(dryRun)
	if err != nil {
		return err
	}
	for _, p := range removed {
		if dryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "Would remove %s\n", p)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", p)
		}
	}
	return nil
}
