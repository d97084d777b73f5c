package dup

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
)

// copyingHook simulates dd by copying the source file onto the "device"
// (a plain file under t.TempDir).
func copyingHook(t *testing.T, srcPath, devPath string) func(Command) error {
	t.Helper()
	return func(cmd Command) error {
		if cmd.Name != "dd" {
			return nil
		}
		data, err := os.ReadFile(srcPath)
		if err != nil {
			return err
		}
		return os.WriteFile(devPath, data, 0o644)
	}
}

func TestCopyImage_SingleAttemptWithoutVerify(t *testing.T) {
	srcPath := writeTempFile(t, "image.img", bytes.Repeat([]byte{1}, 1024))
	src, err := OpenSource(srcPath)
	if err != nil {
		t.Fatalf("open source: %v", err)
	}

	runner := NewRecordRunner()
	dev := Device{Path: writeTempFile(t, "dev", nil)}

	if err := CopyImage(context.Background(), runner, src, dev, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Without verification the garbage left on the device is never read
	// back, and exactly one raw copy happens.
	if got := len(runner.Named("dd")); got != 1 {
		t.Fatalf("expected exactly 1 dd invocation, got %d", got)
	}
}

func TestCopyImage_DDCommandShape(t *testing.T) {
	srcPath := writeTempFile(t, "image.img", bytes.Repeat([]byte{1}, 512))
	src, err := OpenSource(srcPath)
	if err != nil {
		t.Fatalf("open source: %v", err)
	}

	runner := NewRecordRunner()
	dev := Device{Path: "/dev/sdc"}
	if err := CopyImage(context.Background(), runner, src, dev, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cmd := runner.Commands[0]
	line := cmd.String()
	if cmd.Name != "dd" ||
		!strings.Contains(line, "if="+srcPath) ||
		!strings.Contains(line, "of=/dev/sdc") ||
		!strings.Contains(line, "conv=fsync") {
		t.Fatalf("unexpected dd command: %q", line)
	}
}

func TestCopyImage_VerifiedCopyPassesFirstTry(t *testing.T) {
	srcPath := writeTempFile(t, "image.img", bytes.Repeat([]byte{2}, 2048))
	src, err := OpenSource(srcPath)
	if err != nil {
		t.Fatalf("open source: %v", err)
	}

	devPath := writeTempFile(t, "dev", nil)
	runner := NewRecordRunner()
	runner.RunHook = copyingHook(t, srcPath, devPath)

	if err := CopyImage(context.Background(), runner, src, Device{Path: devPath}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(runner.Named("dd")); got != 1 {
		t.Fatalf("expected 1 dd invocation for a clean verify, got %d", got)
	}
}

func TestCopyImage_RetriesExactlyThreeTimes(t *testing.T) {
	srcPath := writeTempFile(t, "image.img", bytes.Repeat([]byte{3}, 2048))
	src, err := OpenSource(srcPath)
	if err != nil {
		t.Fatalf("open source: %v", err)
	}

	// The fake dd writes the wrong bytes every time, so every verification
	// fails and the bounded retry loop runs to exhaustion.
	devPath := writeTempFile(t, "dev", nil)
	runner := NewRecordRunner()
	runner.RunHook = func(cmd Command) error {
		return os.WriteFile(devPath, bytes.Repeat([]byte{0}, 2048), 0o644)
	}

	err = CopyImage(context.Background(), runner, src, Device{Path: devPath}, true)
	if err == nil {
		t.Fatalf("expected failure after exhausted retries")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(runner.Named("dd")); got != 3 {
		t.Fatalf("expected exactly 3 dd invocations, got %d", got)
	}
}

func TestCopyImage_RejectsDirectorySource(t *testing.T) {
	src, err := OpenSource(t.TempDir())
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	if err := CopyImage(context.Background(), NewRecordRunner(), src, Device{Path: "/dev/sdc"}, false); err == nil {
		t.Fatalf("expected error for directory source in image mode")
	}
}
