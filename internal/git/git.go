package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Exposure reports how git sees the plaintext payload files recorded in
// the ledger. Carrier images are not checked; they are meant to be shared.
type Exposure struct {
	IsRepo        bool
	LedgerTracked bool
	Tracked       []string // payload files committed to git (bad)
	Unignored     []string // payload files git would pick up (warning)
	Ignored       []string
}

// HasProblems reports whether any payload file is tracked or unignored
func (e *Exposure) HasProblems() bool {
	return len(e.Tracked) > 0 || len(e.Unignored) > 0
}

func gitCmd(ctx context.Context, workDir string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = workDir
	return cmd
}

// IsGitRepo checks if the working directory is inside a git repository
func IsGitRepo(ctx context.Context, workDir string) bool {
	return gitCmd(ctx, workDir, "rev-parse", "--is-inside-work-tree").Run() == nil
}

// IsTracked checks if a file is tracked by git
func IsTracked(ctx context.Context, workDir, path string) bool {
	output, err := gitCmd(ctx, workDir, "ls-files", "--", path).Output()
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(output))) > 0
}

// IsIgnored checks if a file is ignored by git
func IsIgnored(ctx context.Context, workDir, path string) bool {
	// exit code 0 means ignored
	return gitCmd(ctx, workDir, "check-ignore", "-q", "--", path).Run() == nil
}

// CheckPayloadExposure inspects payload source files and the ledger file.
// Outside a git repository it returns an Exposure with IsRepo false.
func CheckPayloadExposure(ctx context.Context, workDir, ledger string, files []string) (*Exposure, error) {
	exp := &Exposure{}
	if !IsGitRepo(ctx, workDir) {
		return exp, nil
	}
	exp.IsRepo = true
	if ledger != "" {
		exp.LedgerTracked = IsTracked(ctx, workDir, ledger)
	}

	seen := make(map[string]bool, len(files))
	for _, file := range files {
		if file == "" || seen[file] {
			continue
		}
		seen[file] = true
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch {
		case IsTracked(ctx, workDir, file):
			exp.Tracked = append(exp.Tracked, file)
		case IsIgnored(ctx, workDir, file):
			exp.Ignored = append(exp.Ignored, file)
		default:
			exp.Unignored = append(exp.Unignored, file)
		}
	}

	return exp, nil
}

// FormatExposure renders an Exposure for the status command
func FormatExposure(exp *Exposure) string {
	if exp == nil || !exp.IsRepo {
		return ""
	}

	var result strings.Builder
	result.WriteString("\nGit:\n")

	if exp.LedgerTracked {
		result.WriteString("   info: ledger is tracked by git (it holds no secrets)\n")
	}

	if len(exp.Tracked) > 0 {
		result.WriteString(fmt.Sprintf("   error: %d payload file(s) tracked by git:\n", len(exp.Tracked)))
		for _, file := range exp.Tracked {
			result.WriteString(fmt.Sprintf("      - %s (run: git rm --cached %s)\n", file, file))
		}
	}
	for _, file := range exp.Unignored {
		result.WriteString(fmt.Sprintf("   warning: %s not in .gitignore\n", file))
	}
	if !exp.HasProblems() && len(exp.Ignored) > 0 {
		result.WriteString(fmt.Sprintf("   ok: %d payload file(s) in .gitignore\n", len(exp.Ignored)))
	}

	return result.String()
}
