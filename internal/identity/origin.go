package identity

import (
	"path/filepath"

	"github.com/go-git/go-git/v5"
)

// CanonicalOrigin maps a working directory to the path used as the origin of
// a conversation. Inside a git worktree this is the worktree root, so every
// subdirectory of a repository shares one conversation. Otherwise it is the
// cleaned absolute path. An empty dir stays empty.
func CanonicalOrigin(dir string) string {
	if dir == "" {
		return ""
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Clean(dir)
	}

	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return abs
	}
	wt, err := repo.Worktree()
	if err != nil {
		// bare repository
		return abs
	}
	return filepath.Clean(wt.Filesystem.Root())
}
