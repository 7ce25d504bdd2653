package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rybkr/dotman/internal/repo"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show working tree status",
	RunE:  runStatus,
}

var logCmd = &cobra.Command{
	Use:   "log [<ref>]",
	Short: "Walk a commit's ancestors",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLog,
}

var showCmd = &cobra.Command{
	Use:   "show [<ref>]",
	Short: "Print a commit and its file table",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShow,
}

var diffCmd = &cobra.Command{
	Use:   "diff [<from>] [<to>]",
	Short: "Show file-level changes between two commits",
	Args:  cobra.MaximumNArgs(2),
	RunE:  runDiff,
}

func init() {
	statusCmd.Flags().BoolP("short", "s", false, "print a condensed one-line-per-path listing")

	logCmd.Flags().IntP("max-count", "n", 0, "limit the number of commits shown")
	logCmd.Flags().Bool("oneline", false, "print one line per commit")

	rootCmd.AddCommand(statusCmd, logCmd, showCmd, diffCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	tracked, untracked, err := r.Status()
	if err != nil {
		return err
	}
	short, _ := cmd.Flags().GetBool("short")

	out := cmd.OutOrStdout()
	for _, e := range tracked {
		if short {
			fmt.Fprintf(out, "%c  %s\n", statusLetter(e.State), e.Path)
		} else {
			fmt.Fprintf(out, "\t%s: %s\n", e.State, e.Path)
		}
	}
	for _, p := range untracked {
		if short {
			fmt.Fprintf(out, "?? %s\n", p)
		} else {
			fmt.Fprintf(out, "\tuntracked: %s\n", p)
		}
	}
	if len(tracked) == 0 && len(untracked) == 0 {
		fmt.Fprintln(out, "nothing to commit, working tree clean")
	}
	return nil
}

func statusLetter(s fmt.Stringer) byte {
	switch s.String() {
	case "added":
		return 'A'
	case "modified":
		return 'M'
	case "deleted":
		return 'D'
	default:
		return ' '
	}
}

func runLog(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	start := "HEAD"
	if len(args) > 0 {
		start = args[0]
	}
	limit, _ := cmd.Flags().GetInt("max-count")
	oneline, _ := cmd.Flags().GetBool("oneline")

	commits, err := r.Log(start, limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, c := range commits {
		if oneline {
			fmt.Fprintf(out, "%s %s\n", c.ID[:12], c.Message)
			continue
		}
		fmt.Fprintf(out, "commit %s\n", c.ID)
		fmt.Fprintf(out, "Author: %s\n", c.Author)
		fmt.Fprintf(out, "Date:   %d\n\n", c.Timestamp)
		fmt.Fprintf(out, "    %s\n\n", c.Message)
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	expr := "HEAD"
	if len(args) > 0 {
		expr = args[0]
	}
	commit, err := r.Show(expr)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "commit %s\n", commit.ID)
	fmt.Fprintf(out, "Author: %s\n", commit.Author)
	fmt.Fprintf(out, "Date:   %d\n\n", commit.Timestamp)
	fmt.Fprintf(out, "    %s\n\n", commit.Message)
	for _, f := range commit.Files {
		fmt.Fprintf(out, "%s %s\n", f.Hash[:12], f.Path)
	}
	return nil
}

func runDiff(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}

	from, to, err := diffArgsToRefs(r, args)
	if err != nil {
		return err
	}

	diffs, err := r.Diff(from, to)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, d := range diffs {
		fmt.Fprintf(out, "%c %s\n", diffLetter(d.Status), d.Path)
	}
	return nil
}

// diffArgsToRefs resolves diff's variable arity: a synthetic "working
// tree" pseudo-commit is out of scope for this core, so zero/one-arg
// forms both compare against HEAD; two args compares the two named
// commits directly.
func diffArgsToRefs(r *repo.Repository, args []string) (string, string, error) {
	switch len(args) {
	case 0:
		return "HEAD", "HEAD", nil
	case 1:
		return "HEAD", args[0], nil
	default:
		return args[0], args[1], nil
	}
}

func diffLetter(s repo.DiffStatus) byte {
	switch s {
	case repo.DiffAdded:
		return 'A'
	case repo.DiffDeleted:
		return 'D'
	default:
		return 'M'
	}
}
