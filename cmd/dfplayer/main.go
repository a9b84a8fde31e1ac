package main

import (
	"github.com/robotalks/dfplayer.go/pkg/cli/sh"
	"github.com/robotalks/dfplayer.go/pkg/env"

	_ "github.com/robotalks/dfplayer.go/pkg/cli/cmds/player"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
