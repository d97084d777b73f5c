package dup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAborted is returned when the run is stopped by an operator interrupt.
// The CLI maps it to the usage/abort exit code.
var ErrAborted = errors.New("aborted by operator")

// DefaultPollInterval is the sleep between liveness/removal polls.
const DefaultPollInterval = 2 * time.Second

// BatchOptions configures a batch duplication run.
type BatchOptions struct {
	// MinCount is the fewest validated devices a round may start with.
	MinCount int
	// Verify enables post-copy checksum verification (image mode only).
	Verify bool
	// Eject ejects each device after a successful copy and skips the
	// wait-for-removal phase.
	Eject bool
	// ThresholdMiB overrides the device size safety cutoff.
	ThresholdMiB uint64
	// PollInterval is the removal poll cadence.
	PollInterval time.Duration
	// Excludes are rsync exclude patterns for file-tree mode.
	Excludes []string
	// JournalPath, when set, receives an append-only record of each round.
	JournalPath string
}

// ConfirmFunc blocks until the operator has acknowledged the device list for
// a round. Returning false ends the batch loop cleanly; this is the safety
// gate before media is overwritten.
type ConfirmFunc func(round int, devices []Device) (bool, error)

// CopyResult is the per-device outcome of one round.
type CopyResult struct {
	Device Device
	Err    error
}

// Orchestrator drives repeated rounds of detect, confirm, copy, await
// completion and await removal. All round state lives on the orchestrator
// and its rounds; there are no package-level mutable variables.
type Orchestrator struct {
	sys     System
	runner  Runner
	src     *Source
	confirm ConfirmFunc
	opts    BatchOptions
}

func NewOrchestrator(sys System, r Runner, src *Source, confirm ConfirmFunc, opts BatchOptions) *Orchestrator {
	if opts.MinCount < 1 {
		opts.MinCount = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ThresholdMiB == 0 {
		opts.ThresholdMiB = DefaultThresholdMiB
	}
	return &Orchestrator{sys: sys, runner: r, src: src, confirm: confirm, opts: opts}
}

// Run loops batch rounds until the operator declines to continue or the
// context is cancelled. The source digest is computed once, before any copy
// job exists, so the concurrent jobs only ever read it.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.opts.Verify && !o.src.IsDir {
		if _, err := o.src.Digest(true); err != nil {
			return err
		}
	}

	for round := 1; ; round++ {
		again, err := o.runRound(ctx, round)
		if err != nil {
			return err
		}
		if !again {
			return nil
		}
	}
}

func (o *Orchestrator) runRound(ctx context.Context, round int) (bool, error) {
	if ctx.Err() != nil {
		return false, ErrAborted
	}

	devices, err := Enumerate(ctx, o.sys, o.opts.ThresholdMiB)
	if err != nil {
		return false, err
	}
	if len(devices) < o.opts.MinCount {
		return false, fmt.Errorf("round %d: found %d validated devices, need at least %d", round, len(devices), o.opts.MinCount)
	}

	proceed, err := o.confirm(round, devices)
	if err != nil {
		return false, err
	}
	if !proceed {
		infof("round %d: stopped by operator", round)
		return false, nil
	}

	id := uuid.NewString()[:8]
	o.journal(id, round, devices, nil)

	results := o.copyAll(ctx, devices)
	if ctx.Err() != nil {
		return false, ErrAborted
	}
	o.journal(id, round, devices, results)

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	infof("round %d [%s]: %d/%d devices copied", round, id, len(results)-failed, len(results))

	if !o.opts.Eject {
		if err := o.awaitRemoval(ctx); err != nil {
			return false, err
		}
	}
	return true, nil
}

// copyAll fans one copy job per device out onto goroutines and joins them.
// Each job owns a distinct device path and, in tree mode, a distinct mount
// point, so the jobs share nothing mutable. A failing job is reported
// device-locally and never stops its siblings.
func (o *Orchestrator) copyAll(ctx context.Context, devices []Device) []CopyResult {
	results := make([]CopyResult, len(devices))

	var wg sync.WaitGroup
	for i, dev := range devices {
		wg.Add(1)
		go func(i int, dev Device) {
			defer wg.Done()
			results[i] = CopyResult{Device: dev, Err: o.copyOne(ctx, dev)}
		}(i, dev)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) copyOne(ctx context.Context, dev Device) error {
	var err error
	if o.src.IsDir {
		err = CopyTree(ctx, o.runner, o.sys, o.src, dev, o.opts.Excludes)
	} else {
		err = CopyImage(ctx, o.runner, o.src, dev, o.opts.Verify)
	}
	if err != nil {
		errorf("%s: %v", dev.Path, err)
		return err
	}
	infof("%s: done", dev.Path)

	if o.opts.Eject {
		if err := Eject(ctx, o.runner, dev); err != nil {
			warnf("%v", err)
		}
	}
	return nil
}

// awaitRemoval polls enumeration until no validated devices remain attached.
// There is deliberately no upper timeout: the tool waits for the operator.
func (o *Orchestrator) awaitRemoval(ctx context.Context) error {
	infof("remove the copied devices to start the next round")

	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ErrAborted
		case <-ticker.C:
			devices, err := Enumerate(ctx, o.sys, o.opts.ThresholdMiB)
			if err != nil {
				warnf("removal poll: %v", err)
				continue
			}
			if len(devices) == 0 {
				return nil
			}
		}
	}
}

func (o *Orchestrator) journal(id string, round int, devices []Device, results []CopyResult) {
	if o.opts.JournalPath == "" {
		return
	}
	if err := AppendJournal(o.opts.JournalPath, id, round, devices, results); err != nil {
		warnf("cannot write journal %s: %v", o.opts.JournalPath, err)
	}
}
