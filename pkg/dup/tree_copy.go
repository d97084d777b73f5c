package dup

import (
	"context"
	"fmt"
	"os"
)

// CopyTree mirrors the source directory onto the first partition of the
// device: the partition is mounted on a scoped temporary mount point, synced
// with archive semantics and deletion of extraneous files, then unmounted.
// The mount point is released on every exit path, including a failing sync.
func CopyTree(ctx context.Context, r Runner, sys System, src *Source, dev Device, excludes []string) (err error) {
	if !src.IsDir {
		return fmt.Errorf("file-tree copy needs a directory source, %s is a file", src.Path)
	}

	part := partitionNode(dev.Path, 1)
	ok, statErr := sys.IsBlockDevice(part)
	if statErr != nil {
		return fmt.Errorf("cannot stat partition %s: %w", part, statErr)
	}
	if !ok {
		return fmt.Errorf("first partition %s does not exist; file-tree mode needs an already-partitioned target", part)
	}

	mnt, err := os.MkdirTemp("", "usbdup-")
	if err != nil {
		return fmt.Errorf("cannot create mount point: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(mnt); rmErr != nil && err == nil {
			err = fmt.Errorf("cannot remove mount point %s: %w", mnt, rmErr)
		}
	}()

	if err := r.Run(ctx, Command{Name: "mount", Args: []string{part, mnt}}); err != nil {
		return fmt.Errorf("cannot mount %s: %w", part, err)
	}
	defer func() {
		if umErr := r.Run(context.WithoutCancel(ctx), Command{Name: "umount", Args: []string{mnt}}); umErr != nil {
			warnf("failed to unmount %s: %v", mnt, umErr)
			if err == nil {
				err = fmt.Errorf("unmount of %s failed: %w", mnt, umErr)
			}
		}
	}()

	if err := r.Run(ctx, rsyncCommand(src.Path, mnt, excludes)); err != nil {
		return fmt.Errorf("sync onto %s failed: %w", part, err)
	}
	return nil
}

func rsyncCommand(srcDir, mnt string, excludes []string) Command {
	args := []string{"-aAX", "--delete"}
	for _, e := range excludes {
		args = append(args, "--exclude", e)
	}
	args = append(args, srcDir+"/", mnt+"/")
	return Command{Name: "rsync", Args: args}
}
