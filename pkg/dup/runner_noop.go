package dup

import "context"

// RecordRunner logs and records commands but does not execute anything.
// Useful for dry validation and for tests that assert on the exact command
// sequence. The optional hooks let a test simulate failures or canned output
// per command.
type RecordRunner struct {
	Commands []Command

	RunHook    func(cmd Command) error
	OutputHook func(cmd Command) (string, error)
}

func NewRecordRunner() *RecordRunner { return &RecordRunner{} }

func (r *RecordRunner) Run(_ context.Context, cmd Command) error {
	r.Commands = append(r.Commands, cmd)
	infof("noop: %s", cmd)
	if r.RunHook != nil {
		return r.RunHook(cmd)
	}
	return nil
}

func (r *RecordRunner) Output(_ context.Context, cmd Command) (string, error) {
	r.Commands = append(r.Commands, cmd)
	if r.OutputHook != nil {
		return r.OutputHook(cmd)
	}
	return "", nil
}

// Named returns the recorded commands whose utility name matches name.
func (r *RecordRunner) Named(name string) []Command {
	var out []Command
	for _, c := range r.Commands {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
