package dup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/jaypipes/ghw/pkg/block"
	"golang.org/x/sys/unix"
)

// byIDDir is the fixed location of stable device identifiers on Linux.
// Whole USB disks appear there as usb-* entries; their partitions carry a
// -partN suffix and are excluded.
const byIDDir = "/dev/disk/by-id"

// localSystem is a System implementation backed by the local OS: the
// /dev/disk/by-id namespace for discovery, blockdev for size queries (with a
// direct seek fallback), and ghw for advisory hardware details.
type localSystem struct {
	runner Runner
}

// NewLocalSystem creates a System backed by the local OS. The runner is used
// for the external size query utility.
func NewLocalSystem(r Runner) System {
	return &localSystem{runner: r}
}

func (s *localSystem) USBDeviceLinks() ([]string, error) {
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		if os.IsNotExist(err) {
			// No udev by-id namespace means no devices to find.
			return nil, nil
		}
		return nil, err
	}

	var links []string
	for _, e := range entries {
		name := e.Name()
		if strings.Contains(name, "usb") && !strings.Contains(name, "part") {
			links = append(links, name)
		}
	}
	return links, nil
}

func (s *localSystem) ResolveDevice(link string) (string, error) {
	return filepath.EvalSymlinks(filepath.Join(byIDDir, link))
}

func (s *localSystem) IsBlockDevice(path string) (bool, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		if err == unix.ENOENT {
			return false, nil
		}
		return false, err
	}
	return st.Mode&unix.S_IFMT == unix.S_IFBLK, nil
}

// SizeBytes queries the device size with blockdev. If blockdev is not usable
// the size is read directly from the node by seeking to its end.
func (s *localSystem) SizeBytes(ctx context.Context, path string) (uint64, error) {
	out, err := s.runner.Output(ctx, Command{Name: "blockdev", Args: []string{"--getsize64", path}})
	if err == nil {
		size, perr := strconv.ParseUint(out, 10, 64)
		if perr == nil {
			return size, nil
		}
		err = fmt.Errorf("cannot parse blockdev output %q: %w", out, perr)
	}

	size, serr := seekDeviceSize(path)
	if serr != nil {
		return 0, fmt.Errorf("size query failed for %s: %w (seek fallback: %v)", path, err, serr)
	}
	return size, nil
}

func seekDeviceSize(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	return uint64(end), nil
}

// DiskInfo looks the device up in the ghw block inventory. The inventory is
// probed fresh on every call because devices are hot-swapped between batch
// rounds; any failure only costs the cosmetic details.
func (s *localSystem) DiskInfo(path string) (string, string) {
	info, err := block.New(ghw.WithDisableTools())
	if err != nil {
		warnf("cannot read block device inventory: %v", err)
		return "", ""
	}

	name := strings.TrimPrefix(path, "/dev/")
	for _, d := range info.Disks {
		if d.Name == name {
			return d.Model, d.BusPath
		}
	}
	return "", ""
}
