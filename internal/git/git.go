package git

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
)

// Status is the git state of one path
type Status struct {
	IsRepo  bool
	Tracked bool
	Ignored bool
}

// IsGitRepo checks if dir is inside a git work tree
func IsGitRepo(ctx context.Context, dir string) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = dir
	return cmd.Run() == nil
}

// IsTracked checks if a file is tracked by git
func IsTracked(ctx context.Context, dir, path string) bool {
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--", path)
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(output))) > 0
}

// IsIgnored checks if a file is ignored by git (handles all .gitignore files)
func IsIgnored(ctx context.Context, dir, path string) bool {
	cmd := exec.CommandContext(ctx, "git", "check-ignore", "-q", "--", path)
	cmd.Dir = dir
	// git check-ignore returns exit code 0 if file is ignored
	return cmd.Run() == nil
}

// Inspect reports the git state of path. Paths outside a repository, or
// a missing git binary, yield the zero Status.
func Inspect(ctx context.Context, path string) Status {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Status{}
	}
	dir, name := filepath.Dir(abs), filepath.Base(abs)
	if !IsGitRepo(ctx, dir) {
		return Status{}
	}
	return Status{
		IsRepo:  true,
		Tracked: IsTracked(ctx, dir, name),
		Ignored: IsIgnored(ctx, dir, name),
	}
}

// FormatVault describes the vault database's exposure to git
func FormatVault(s Status) string {
	if !s.IsRepo {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nGit:\n")
	switch {
	case s.Tracked:
		b.WriteString("   error: vault is tracked by git (run: git rm --cached <vault>)\n")
	case s.Ignored:
		b.WriteString("   ok: vault is in .gitignore\n")
	default:
		b.WriteString("   warning: vault not in .gitignore (add it to .gitignore)\n")
	}
	return b.String()
}

// FormatSyncDir describes whether the sync directory can be shared via git
func FormatSyncDir(isRepo bool) string {
	if !isRepo {
		return ""
	}
	return "          git work tree (commit and push to share)\n"
}
