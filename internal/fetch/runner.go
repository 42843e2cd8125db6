package fetch

import (
	"bytes"
	"context"
	"fmt"
	osexec "os/exec"
	"strings"
)

// Runner executes a git subcommand in dir and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecRunner shells out to the git binary.
type ExecRunner struct {
	// Binary defaults to "git".
	Binary string
}

func (r ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	bin := r.Binary
	if bin == "" {
		bin = "git"
	}
	cmd := osexec.CommandContext(ctx, bin, args...) //nolint:gosec // arguments are built by this package
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	var result strings.Builder
	result.WriteString(stdout.String())
	if stderr.Len() > 0 {
		if result.Len() > 0 {
			result.WriteString("\n")
		}
		result.WriteString(stderr.String())
	}
	if err != nil {
		return "", fmt.Errorf("git %s: %w\n%s", strings.Join(args, " "), err, result.String())
	}
	return result.String(), nil
}
