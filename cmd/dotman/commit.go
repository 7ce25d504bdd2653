package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Record staged changes as a new snapshot",
	RunE:  runCommit,
}

func init() {
	commitCmd.Flags().StringP("message", "m", "", "commit message (required)")
	commitCmd.Flags().BoolP("all", "a", false, "stage every tracked path's changes before committing")
	_ = commitCmd.MarkFlagRequired("message")
	rootCmd.AddCommand(commitCmd)
}

func runCommit(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	message, _ := cmd.Flags().GetString("message")
	all, _ := cmd.Flags().GetBool("all")

	if all {
		tracked, _, err := r.Status()
		if err != nil {
			return err
		}
		var paths []string
		for _, e := range tracked {
			paths = append(paths, e.Path)
		}
		if len(paths) > 0 {
			if err := r.Add(paths); err != nil {
				return err
			}
		}
	}

	timestamp, tz := nowStamp()
	commit, err := r.Commit(message, "", timestamp, tz)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", commit.ID[:12], commit.Message)
	return nil
}
