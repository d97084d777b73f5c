package dup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

func treeFixture(t *testing.T) (*Source, Device, *fakeSystem) {
	t.Helper()
	src, err := OpenSource(t.TempDir())
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	sys := &fakeSystem{blockDevs: map[string]bool{"/dev/sdc1": true}}
	return src, Device{Path: "/dev/sdc"}, sys
}

func TestCopyTree_CommandSequence(t *testing.T) {
	src, dev, sys := treeFixture(t)
	runner := NewRecordRunner()

	if err := CopyTree(context.Background(), runner, sys, src, dev, []string{"lost+found"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(runner.Commands) != 3 {
		t.Fatalf("expected mount/rsync/umount, got %v", runner.Commands)
	}
	mount, rsync, umount := runner.Commands[0], runner.Commands[1], runner.Commands[2]

	if mount.Name != "mount" || mount.Args[0] != "/dev/sdc1" {
		t.Fatalf("expected first partition mount, got %q", mount.String())
	}
	mnt := mount.Args[1]

	line := rsync.String()
	if rsync.Name != "rsync" ||
		!strings.Contains(line, "-aAX") ||
		!strings.Contains(line, "--delete") ||
		!strings.Contains(line, "--exclude lost+found") ||
		!strings.HasSuffix(line, fmt.Sprintf("%s/ %s/", src.Path, mnt)) {
		t.Fatalf("unexpected rsync command: %q", line)
	}

	if umount.Name != "umount" || umount.Args[0] != mnt {
		t.Fatalf("expected umount of %s, got %q", mnt, umount.String())
	}

	if _, err := os.Stat(mnt); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("mount point %s not cleaned up", mnt)
	}
}

func TestCopyTree_FailsFastWithoutFirstPartition(t *testing.T) {
	src, dev, sys := treeFixture(t)
	sys.blockDevs = nil
	runner := NewRecordRunner()

	err := CopyTree(context.Background(), runner, sys, src, dev, nil)
	if err == nil || !strings.Contains(err.Error(), "/dev/sdc1") {
		t.Fatalf("expected missing-partition error, got %v", err)
	}
	if len(runner.Commands) != 0 {
		t.Fatalf("expected no commands before the partition check, got %v", runner.Commands)
	}
}

func TestCopyTree_ReleasesMountWhenSyncFails(t *testing.T) {
	src, dev, sys := treeFixture(t)
	runner := NewRecordRunner()
	runner.RunHook = func(cmd Command) error {
		if cmd.Name == "rsync" {
			return errors.New("rsync exploded")
		}
		return nil
	}

	err := CopyTree(context.Background(), runner, sys, src, dev, nil)
	if err == nil || !strings.Contains(err.Error(), "rsync exploded") {
		t.Fatalf("expected sync failure, got %v", err)
	}

	var sawUmount bool
	var mnt string
	for _, cmd := range runner.Commands {
		switch cmd.Name {
		case "mount":
			mnt = cmd.Args[1]
		case "umount":
			sawUmount = true
		}
	}
	if !sawUmount {
		t.Fatalf("umount not run after failed sync: %v", runner.Commands)
	}
	if _, statErr := os.Stat(mnt); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("mount point %s not cleaned up after failure", mnt)
	}
}

func TestCopyTree_RejectsFileSource(t *testing.T) {
	path := writeTempFile(t, "image.img", []byte("x"))
	src, err := OpenSource(path)
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	sys := &fakeSystem{blockDevs: map[string]bool{"/dev/sdc1": true}}
	if err := CopyTree(context.Background(), NewRecordRunner(), sys, src, Device{Path: "/dev/sdc"}, nil); err == nil {
		t.Fatalf("expected error for file source in tree mode")
	}
}
