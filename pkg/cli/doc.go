// Package cli provides the command-line interface for usbdup.
//
// The CLI wires flags and the optional defaults file into the dup package:
// `enum` lists validated devices, `copy` writes a single device, `verify`
// compares every attached device against the source checksum, and
// `batchcopy` drives repeated operator-confirmed rounds. Use `Main` as the
// entry point when embedding the CLI in other tools.
package cli
