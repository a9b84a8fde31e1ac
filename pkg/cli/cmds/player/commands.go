// Package player exposes every Player operation as a shell command.
package player

import (
	"github.com/abiosoft/ishell"

	"github.com/robotalks/dfplayer.go/pkg/cli/sh"
	"github.com/robotalks/dfplayer.go/pkg/dfplayer"
)

// Cmds are the commands generated from dfplayer.Ops.
var Cmds []*ishell.Cmd

// NewCmd creates the shell command for op.
func NewCmd(op *dfplayer.Op) *ishell.Cmd {
	help := op.Help
	if len(op.Args) > 0 {
		help = op.Usage()[len(op.Name)+1:] + " " + help
	}
	return &ishell.Cmd{
		Name:    op.Name,
		Aliases: op.Aliases,
		Help:    help,
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoOp(c, op)
		}),
	}
}

func init() {
	for _, op := range dfplayer.Ops() {
		Cmds = append(Cmds, NewCmd(op))
	}
	sh.AddCmds(Cmds...)
}
