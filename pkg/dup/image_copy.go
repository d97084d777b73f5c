package dup

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// maxCopyAttempts bounds the copy+verify loop in image mode. Without
// verification there is nothing to judge a copy against, so only a single
// attempt is made.
const maxCopyAttempts = 3

// CopyImage writes the raw source image onto the whole device. With verify
// enabled the written bytes are read back and digest-compared, and the copy
// is re-attempted up to maxCopyAttempts times before the device is reported
// failed. A failing device never affects its batch siblings.
func CopyImage(ctx context.Context, r Runner, src *Source, dev Device, verify bool) error {
	if src.IsDir {
		return fmt.Errorf("image copy needs a file source, %s is a directory", src.Path)
	}

	attempts := 1
	if verify {
		attempts = maxCopyAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := r.Run(ctx, ddCommand(src, dev)); err != nil {
			lastErr = fmt.Errorf("raw copy failed: %w", err)
			if !verify {
				return fmt.Errorf("copy to %s: %w", dev.Path, lastErr)
			}
			warnf("%s: attempt %d/%d: %v", dev.Path, attempt, attempts, lastErr)
			continue
		}
		unix.Sync()

		if !verify {
			return nil
		}

		ok, err := src.VerifyDevice(dev.Path, false)
		if err != nil {
			lastErr = err
			warnf("%s: attempt %d/%d: %v", dev.Path, attempt, attempts, err)
			continue
		}
		if ok {
			infof("%s: checksum verified", dev.Path)
			return nil
		}
		lastErr = fmt.Errorf("checksum mismatch")
		warnf("%s: attempt %d/%d: checksum mismatch, rewriting", dev.Path, attempt, attempts)
	}

	return fmt.Errorf("copy to %s failed after %d attempts: %w", dev.Path, attempts, lastErr)
}

func ddCommand(src *Source, dev Device) Command {
	return Command{
		Name: "dd",
		Args: []string{"if=" + src.Path, "of=" + dev.Path, "bs=4M", "conv=fsync"},
	}
}
