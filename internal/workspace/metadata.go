package workspace

import (
	"errors"
	"fmt"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/temirov/gitpublish/internal/publish"
)

const (
	journalDirectoryNameConstant        = "gitpublish"
	journalFileNameConstant             = "journal.db"
	metadataLookupErrorTemplateConstant = "unable to locate workspace metadata for %s: %w"
	worktreeLookupErrorTemplateConstant = "unable to locate worktree for %s: %w"
)

// ErrMetadataUnavailable indicates a workspace whose metadata is not stored on disk.
var ErrMetadataUnavailable = errors.New("workspace metadata is not stored on the filesystem")

// MetadataDirectory returns the .git directory that holds the workspace metadata for path or any of its parents.
func MetadataDirectory(path string) (string, error) {
	repository, openError := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if openError != nil {
		return "", fmt.Errorf(metadataLookupErrorTemplateConstant, path, openError)
	}
	storage, onDisk := repository.Storer.(*filesystem.Storage)
	if !onDisk {
		return "", ErrMetadataUnavailable
	}
	return storage.Filesystem().Root(), nil
}

// WorktreeRoot returns the top-level directory of the worktree that contains path.
func WorktreeRoot(path string) (string, error) {
	repository, openError := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if openError != nil {
		return "", fmt.Errorf(worktreeLookupErrorTemplateConstant, path, openError)
	}
	worktree, worktreeError := repository.Worktree()
	if worktreeError != nil {
		return "", fmt.Errorf(worktreeLookupErrorTemplateConstant, path, worktreeError)
	}
	return worktree.Filesystem.Root(), nil
}

// LoadExclusionMatcher reads the exclusion rules of the worktree containing path. A path nested
// below the worktree root still sees the root .gitignore and .git/info/exclude.
func LoadExclusionMatcher(path string) (gitignore.Matcher, error) {
	root, rootError := WorktreeRoot(path)
	if rootError != nil {
		return nil, rootError
	}
	return publish.LoadExclusionMatcher(root)
}

// JournalPath returns the location of the publish journal for the workspace at path.
func JournalPath(path string) (string, error) {
	metadataDirectory, lookupError := MetadataDirectory(path)
	if lookupError != nil {
		return "", lookupError
	}
	return filepath.Join(metadataDirectory, journalDirectoryNameConstant, journalFileNameConstant), nil
}
