package dup

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// AppendJournal appends a human-readable record of a batch round to the given
// path. A nil results slice records the start of the round; a populated one
// records its outcome. Entries are append-only so the file doubles as a
// production log of which media went through the duplicator.
func AppendJournal(path string, id string, round int, devices []Device, results []CopyResult) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, statErr := f.Stat()
	if statErr == nil && info.Size() == 0 {
		header := "# usbdup journal - one section per batch round, newest at the bottom.\n\n"
		if _, err := f.WriteString(header); err != nil {
			return err
		}
	}

	phase := "ROUND_START"
	if results != nil {
		phase = "ROUND_DONE"
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var b strings.Builder

	fmt.Fprintf(&b, "=== %s %s round=%d id=%s ===\n", phase, now, round, id)
	fmt.Fprintf(&b, "devices:\n")
	for _, d := range devices {
		fmt.Fprintf(&b, "- %s (%s)\n", d.Path, d.Link)
	}
	if results != nil {
		fmt.Fprintf(&b, "results:\n")
		for _, res := range results {
			if res.Err != nil {
				fmt.Fprintf(&b, "- %s: FAILED: %v\n", res.Device.Path, res.Err)
			} else {
				fmt.Fprintf(&b, "- %s: OK\n", res.Device.Path)
			}
		}
	}
	b.WriteString("\n")

	_, writeErr := f.WriteString(b.String())
	return writeErr
}
