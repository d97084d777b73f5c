// Package dup contains the core domain logic for usbdup: enumerating and
// validating attached USB block devices, computing and comparing source
// checksums, copying a raw image or a file tree onto each device, and driving
// repeated batch rounds with operator confirmation. It is used by the CLI
// layer but can also be embedded in other tooling that needs programmatic
// USB mass duplication.
package dup
