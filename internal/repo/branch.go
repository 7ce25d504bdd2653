package repo

import "github.com/rybkr/dotman/internal/merge"

// CreateBranch creates a new branch at startExpr (HEAD if empty).
func (r *Repository) CreateBranch(name, startExpr, who string) error {
	startID := ""
	if startExpr != "" {
		id, err := r.resolver.Resolve(startExpr)
		if err != nil {
			return err
		}
		startID = id
	} else if head, err := r.refsMgr.GetHeadCommit(); err == nil {
		startID = head
	}
	return r.refsMgr.CreateBranch(name, startID, who)
}

// DeleteBranch removes a branch, refusing unless it is fully merged
// into the current branch (or main/master) or force is set.
func (r *Repository) DeleteBranch(name string, force bool) error {
	current, _ := r.refsMgr.CurrentBranch() //nolint:errcheck // detached HEAD yields "", handled by DeleteBranch
	return r.refsMgr.DeleteBranch(name, force, current, func(tip, target string) (bool, error) {
		return merge.IsAncestor(tip, target, r.commits.Parents)
	})
}

// RenameBranch renames a branch.
func (r *Repository) RenameBranch(oldName, newName string) error {
	return r.refsMgr.RenameBranch(oldName, newName)
}

// ListBranches returns all branch names, sorted.
func (r *Repository) ListBranches() ([]string, error) { return r.refsMgr.ListBranches() }

// CreateTag creates a tag at the commit targetExpr resolves to (HEAD
// if empty).
func (r *Repository) CreateTag(name, targetExpr string) error {
	if targetExpr == "" {
		targetExpr = "HEAD"
	}
	id, err := r.resolver.Resolve(targetExpr)
	if err != nil {
		return err
	}
	return r.refsMgr.CreateTag(name, id)
}

// DeleteTag removes a tag.
func (r *Repository) DeleteTag(name string) error { return r.refsMgr.DeleteTag(name) }

// ListTags returns all tag names, sorted.
func (r *Repository) ListTags() ([]string, error) { return r.refsMgr.ListTags() }
