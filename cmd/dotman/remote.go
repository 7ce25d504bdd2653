package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Manage remote entries in config.toml",
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add a new remote",
	Args:  cobra.ExactArgs(2),
	RunE:  runRemoteAdd,
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a remote",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemoteRemove,
}

var remoteSetURLCmd = &cobra.Command{
	Use:   "set-url <name> <url>",
	Short: "Change a remote's URL",
	Args:  cobra.ExactArgs(2),
	RunE:  runRemoteSetURL,
}

var remoteRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a remote",
	Args:  cobra.ExactArgs(2),
	RunE:  runRemoteRename,
}

var remoteShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a remote's configured URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemoteShow,
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured remotes",
	RunE:  runRemoteList,
}

func init() {
	remoteCmd.AddCommand(remoteAddCmd, remoteRemoveCmd, remoteSetURLCmd, remoteRenameCmd, remoteShowCmd, remoteListCmd)
	rootCmd.AddCommand(remoteCmd)
}

func runRemoteAdd(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	return r.AddRemote(args[0], args[1])
}

func runRemoteRemove(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	return r.RemoveRemote(args[0])
}

func runRemoteSetURL(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	return r.SetRemoteURL(args[0], args[1])
}

func runRemoteRename(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	return r.RenameRemoteEntry(args[0], args[1])
}

func runRemoteShow(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	rc, err := r.ShowRemote(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", args[0], rc.URL)
	return nil
}

func runRemoteList(cmd *cobra.Command, args []string) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	for _, name := range r.ListRemotes() {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}
