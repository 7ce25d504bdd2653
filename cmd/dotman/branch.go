package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var branchCmd = &cobra.Command{
	Use:   "branch [<name>] [<start>]",
	Short: "List, create, rename, or delete branches",
	Args:  cobra.MaximumNArgs(2),
	RunE:  runBranch,
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout <ref>",
	Short: "Switch the working tree to a branch or commit",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckout,
}

var tagCmd = &cobra.Command{
	Use:   "tag [<name>] [<target>]",
	Short: "List, create, or delete tags",
	Args:  cobra.MaximumNArgs(2),
	RunE:  runTag,
}

func init() {
	branchCmd.Flags().StringP("delete", "d", "", "delete the named branch")
	branchCmd.Flags().StringP("move", "m", "", "rename the branch named by this flag to the single positional argument")
	branchCmd.Flags().Bool("force", false, "allow deleting a branch that is not fully merged")

	checkoutCmd.Flags().BoolP("force", "f", false, "discard uncommitted changes")
	checkoutCmd.Flags().StringP("branch", "b", "", "create and switch to a new branch at <ref>")

	tagCmd.Flags().StringP("delete", "d", "", "delete the named tag")

	rootCmd.AddCommand(branchCmd, checkoutCmd, tagCmd)
}

func runBranch(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}

	if del, _ := cmd.Flags().GetString("delete"); del != "" {
		force, _ := cmd.Flags().GetBool("force")
		return r.DeleteBranch(del, force)
	}
	if old, _ := cmd.Flags().GetString("move"); old != "" {
		if len(args) != 1 {
			return fmt.Errorf("dotman: branch -m <old> <new> requires the new name as the sole argument")
		}
		return r.RenameBranch(old, args[0])
	}

	if len(args) == 0 {
		branches, err := r.ListBranches()
		if err != nil {
			return err
		}
		for _, b := range branches {
			fmt.Fprintln(cmd.OutOrStdout(), b)
		}
		return nil
	}

	name := args[0]
	start := ""
	if len(args) > 1 {
		start = args[1]
	}
	return r.CreateBranch(name, start, who(r))
}

func runCheckout(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")
	newBranch, _ := cmd.Flags().GetString("branch")

	if newBranch != "" {
		if err := r.CreateBranch(newBranch, args[0], who(r)); err != nil {
			return err
		}
		return r.CheckoutRef(newBranch, who(r), force)
	}
	return r.CheckoutRef(args[0], who(r), force)
}

func runTag(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}

	if del, _ := cmd.Flags().GetString("delete"); del != "" {
		return r.DeleteTag(del)
	}

	if len(args) == 0 {
		tags, err := r.ListTags()
		if err != nil {
			return err
		}
		for _, t := range tags {
			fmt.Fprintln(cmd.OutOrStdout(), t)
		}
		return nil
	}

	name := args[0]
	target := ""
	if len(args) > 1 {
		target = args[1]
	}
	return r.CreateTag(name, target)
}
