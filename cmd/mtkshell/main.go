package main

import (
	"github.com/robotalks/mtkflash/pkg/cli/sh"
	"github.com/robotalks/mtkflash/pkg/flasher"

	_ "github.com/robotalks/mtkflash/pkg/cli/cmds/flash"
)

//go-build: CGO_ENABLED=0

func init() {
	flasher.SetupFlags()
}

func main() {
	sh.Main()
}
