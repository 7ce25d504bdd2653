package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rybkr/dotman/internal/repo"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new dotman repository in the current directory",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().String("author-name", "", "author name recorded in config.toml")
	initCmd.Flags().String("author-email", "", "author email recorded in config.toml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("author-name")
	email, _ := cmd.Flags().GetString("author-email")

	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("dotman: getwd: %w", err)
	}

	r, err := repo.Init(dir, name, email)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Initialized empty dotman repository in %s\n", r.MetaRoot())
	return nil
}
