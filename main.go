package main

import (
	"os"

	"github.com/woliveiras/usbdup/pkg/cli"
)

func main() {
	os.Exit(cli.Main(os.Args[1:]))
}
