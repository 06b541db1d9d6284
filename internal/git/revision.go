// Package git looks up the revision of tracked files so generated documents
// can name the allowlist version they were built from.
package git

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"tablekeeper/pkg/models"
)

var (
	// ErrNotRepository is returned when the file is not inside a git work tree.
	ErrNotRepository = stderrors.New("not a git repository")
	// ErrNoRevision is returned when no commit touches the file.
	ErrNoRevision = stderrors.New("file has no committed revision")
)

// GitManager reads history from a repository
type GitManager struct {
	repoPath string
	repo     *git.Repository
}

// NewGitManager opens the repository containing path, searching parent
// directories for the .git directory.
func NewGitManager(path string) (*GitManager, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err == git.ErrRepositoryNotExists {
		return nil, ErrNotRepository
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}

	return &GitManager{
		repoPath: wt.Filesystem.Root(),
		repo:     repo,
	}, nil
}

// relative returns file relative to the work tree root, slash separated.
func (gm *GitManager) relative(file string) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	root := gm.repoPath
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	if resolved, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(resolved, filepath.Base(abs))
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the repository at %s", file, gm.repoPath)
	}
	return filepath.ToSlash(rel), nil
}

// FileRevision returns the last commit that touched file and whether the
// working copy has uncommitted changes to it.
func (gm *GitManager) FileRevision(file string) (*models.Revision, error) {
	rel, err := gm.relative(file)
	if err != nil {
		return nil, err
	}

	head, err := gm.repo.Head()
	if err != nil {
		return nil, ErrNoRevision
	}

	iter, err := gm.repo.Log(&git.LogOptions{From: head.Hash(), FileName: &rel})
	if err != nil {
		return nil, fmt.Errorf("failed to get commit log: %w", err)
	}
	defer iter.Close()

	commit, err := iter.Next()
	if err != nil || commit == nil {
		return nil, ErrNoRevision
	}

	rev := revisionOf(commit)

	wt, err := gm.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read worktree status: %w", err)
	}
	if fs, ok := status[rel]; ok {
		rev.Modified = fs.Worktree != git.Unmodified || fs.Staging != git.Unmodified
	}

	return rev, nil
}

func revisionOf(c *object.Commit) *models.Revision {
	message := strings.TrimSpace(c.Message)
	if idx := strings.Index(message, "\n"); idx > 0 {
		message = message[:idx]
	}
	return &models.Revision{
		Hash:    c.Hash.String(),
		Author:  c.Author.Name,
		Date:    c.Author.When,
		Message: message,
	}
}

// FileRevision opens the repository containing file and returns its revision.
func FileRevision(file string) (*models.Revision, error) {
	gm, err := NewGitManager(filepath.Dir(file))
	if err != nil {
		return nil, err
	}
	return gm.FileRevision(file)
}
