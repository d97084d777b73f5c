package dup

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// DefaultThresholdMiB is the size cutoff for the device safety check.
// Devices at or above this size are assumed to be internal disks that merely
// match the USB naming pattern (e.g. a disk behind a USB/SATA bridge) and are
// refused. Typical duplication targets are flash sticks well under 64 GiB.
const DefaultThresholdMiB = 64000

// Device is a validated duplication target. Identity is the resolved /dev
// node path; devices are re-enumerated every batch round and nothing about
// them is persisted.
type Device struct {
	// Path is the resolved block device node, e.g. /dev/sdc.
	Path string
	// Link is the /dev/disk/by-id entry the device was discovered through.
	Link string
	// SizeBytes is the total device size as reported by the size query.
	SizeBytes uint64
	// Model and Bus are advisory hardware details, best-effort.
	Model string
	Bus   string
}

func (d Device) SizeMiB() uint64 { return d.SizeBytes / (1024 * 1024) }

func (d Device) String() string {
	if d.Model != "" {
		return fmt.Sprintf("%s (%d MiB, %s)", d.Path, d.SizeMiB(), strings.TrimSpace(d.Model))
	}
	return fmt.Sprintf("%s (%d MiB)", d.Path, d.SizeMiB())
}

// System abstracts how device information is discovered from the underlying
// OS. Tests provide a fake implementation; the real one reads
// /dev/disk/by-id and queries sizes via blockdev.
type System interface {
	// USBDeviceLinks lists the by-id entries that follow the USB whole-disk
	// naming convention. An empty list is not an error.
	USBDeviceLinks() ([]string, error)
	// ResolveDevice resolves a by-id link name to its /dev node path.
	ResolveDevice(link string) (string, error)
	// IsBlockDevice reports whether path exists and is a block device node.
	IsBlockDevice(path string) (bool, error)
	// SizeBytes returns the total size of the block device at path.
	SizeBytes(ctx context.Context, path string) (uint64, error)
	// DiskInfo returns best-effort model and bus details for the device.
	// Both may be empty; failures here never reject a device.
	DiskInfo(path string) (model, bus string)
}

// DefaultSystem is used when no explicit System is injected.
var DefaultSystem System = NewLocalSystem(ExecRunner{})

// Enumerate lists attached USB whole-disk devices, deduplicated by resolved
// node path and sorted by path. Devices that fail the safety validation are
// excluded with a warning rather than failing the enumeration; zero attached
// devices yields an empty slice and no error.
func Enumerate(ctx context.Context, sys System, thresholdMiB uint64) ([]Device, error) {
	links, err := sys.USBDeviceLinks()
	if err != nil {
		return nil, fmt.Errorf("failed to list device identifiers: %w", err)
	}

	seen := make(map[string]bool)
	var devices []Device
	for _, link := range links {
		path, err := sys.ResolveDevice(link)
		if err != nil {
			warnf("skipping %s: cannot resolve: %v", link, err)
			continue
		}
		if seen[path] {
			continue
		}
		seen[path] = true

		dev, err := Validate(ctx, sys, path, thresholdMiB)
		if err != nil {
			warnf("skipping %s: %v", path, err)
			continue
		}
		dev.Link = link
		devices = append(devices, dev)
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Path < devices[j].Path })
	return devices, nil
}

// Validate checks that path is an existing block device node strictly below
// the size threshold and returns the populated Device. Callers performing a
// single-device operation treat an error here as fatal; Enumerate merely
// excludes the device.
func Validate(ctx context.Context, sys System, path string, thresholdMiB uint64) (Device, error) {
	if thresholdMiB == 0 {
		thresholdMiB = DefaultThresholdMiB
	}
	path = ensureDevPrefix(path)

	ok, err := sys.IsBlockDevice(path)
	if err != nil {
		return Device{}, fmt.Errorf("cannot stat %s: %w", path, err)
	}
	if !ok {
		return Device{}, fmt.Errorf("%s is not a block device", path)
	}

	size, err := sys.SizeBytes(ctx, path)
	if err != nil {
		return Device{}, fmt.Errorf("cannot determine size of %s: %w", path, err)
	}

	dev := Device{Path: path, SizeBytes: size}
	if dev.SizeMiB() >= thresholdMiB {
		return Device{}, fmt.Errorf("%s is %d MiB, at or above the %d MiB safety cutoff; refusing in case it is an internal disk", path, dev.SizeMiB(), thresholdMiB)
	}

	dev.Model, dev.Bus = sys.DiskInfo(path)
	if dev.Bus != "" && !strings.Contains(dev.Bus, "usb") {
		warnf("%s does not look USB-attached (bus %q); double-check before confirming", path, dev.Bus)
	}
	return dev, nil
}

func ensureDevPrefix(name string) string {
	if name == "" || strings.HasPrefix(name, "/dev/") {
		return name
	}
	return "/dev/" + name
}

// partitionNode returns the node path of the numbered partition of a disk,
// following the kernel naming scheme: sdc -> sdc1, but mmcblk0 -> mmcblk0p1
// and nvme0n1 -> nvme0n1p1.
func partitionNode(disk string, index int) string {
	name := strings.TrimPrefix(disk, "/dev/")
	if strings.HasPrefix(name, "mmcblk") || strings.HasPrefix(name, "nvme") {
		return fmt.Sprintf("/dev/%sp%d", name, index)
	}
	return fmt.Sprintf("/dev/%s%d", name, index)
}

// Eject asks the OS to eject the media in the given device.
func Eject(ctx context.Context, r Runner, dev Device) error {
	if err := r.Run(ctx, Command{Name: "eject", Args: []string{dev.Path}}); err != nil {
		return fmt.Errorf("failed to eject %s: %w", dev.Path, err)
	}
	return nil
}

// CheckPrerequisites ensures the required external utilities are installed
// before any device is touched. A missing utility is a configuration error
// and aborts the run immediately.
func CheckPrerequisites(needEject bool) error {
	required := []string{
		"dd",
		"rsync",
		"blockdev",
		"mount",
		"umount",
	}
	if needEject {
		required = append(required, "eject")
	}

	var missing []string
	for _, cmd := range required {
		if _, err := exec.LookPath(cmd); err != nil {
			missing = append(missing, cmd)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required commands: %s (install coreutils, rsync and util-linux)", strings.Join(missing, ", "))
	}
	return nil
}
