package dup

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Command describes a single external utility invocation. Commands are built
// by the copy/validation code and handed to a Runner; they are never passed
// through a shell.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Runner abstracts how external commands are executed. The real
// implementation shells out with os/exec; tests inject a recording runner so
// no device is ever touched.
type Runner interface {
	// Run executes the command and waits for it to exit.
	Run(ctx context.Context, cmd Command) error
	// Output executes the command and returns its trimmed standard output.
	Output(ctx context.Context, cmd Command) (string, error)
}

// ExecRunner executes commands on the local system. Failures are reported
// with the full command line and exit code so the operator can tell exactly
// which utility call went wrong.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, cmd Command) error {
	infof("exec: %s", cmd)
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	out, err := c.CombinedOutput()
	if err != nil {
		return commandError(cmd, out, err)
	}
	return nil
}

func (ExecRunner) Output(ctx context.Context, cmd Command) (string, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	out, err := c.Output()
	if err != nil {
		return "", commandError(cmd, out, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func commandError(cmd Command, out []byte, err error) error {
	msg := strings.TrimSpace(string(out))
	if exitErr, ok := err.(*exec.ExitError); ok {
		if msg == "" {
			msg = strings.TrimSpace(string(exitErr.Stderr))
		}
		if msg != "" {
			return fmt.Errorf("command %q exited with code %d: %s", cmd.String(), exitErr.ExitCode(), msg)
		}
		return fmt.Errorf("command %q exited with code %d", cmd.String(), exitErr.ExitCode())
	}
	return fmt.Errorf("command %q failed: %w", cmd.String(), err)
}
