package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rybkr/dotman/internal/repo"
)

// openRepo opens the dotman repository rooted at the current working
// directory, the one repo-discovery strategy this CLI supports.
func openRepo() (*repo.Repository, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("dotman: getwd: %w", err)
	}
	return repo.Open(dir)
}

// who identifies the acting user for reflog entries, preferring the
// repo's configured author over the OS user.
func who(r *repo.Repository) string {
	cfg := r.Config()
	if cfg.Author.Name != "" {
		return cfg.Author.Name
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

// nowStamp returns the current time as (unix seconds, local UTC
// offset in minutes), the pair every commit-producing command needs.
func nowStamp() (int64, int) {
	now := time.Now()
	_, offsetSeconds := now.Zone()
	return now.Unix(), offsetSeconds / 60
}
