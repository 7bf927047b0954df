package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jasonshaw0/eng-final/internal/autoplay"
)

const controlsHelp = "controls: p pause · r resume · n next · s stop · + speed · q quit"

// controller is the part of the orchestrator driven from the keyboard.
type controller interface {
	Pause() error
	Resume() error
	Skip() error
	Stop()
	CycleSpeed() float64
}

// readControls applies one command per input line until r is exhausted, ctx
// ends, or q is read. It serves input that is not a terminal; interactive
// sessions use playModel. q stops narration and calls quit. Results and errors
// go to out.
func readControls(ctx context.Context, r io.Reader, c controller, quit func(), out func(string)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if done := applyControl(strings.TrimSpace(scanner.Text()), c, quit, out); done {
			return
		}
	}
}

// applyControl runs a single command and reports whether input should stop.
func applyControl(cmd string, c controller, quit func(), out func(string)) bool {
	var err error
	switch strings.ToLower(cmd) {
	case "":
		return false
	case "p":
		err = c.Pause()
	case "r":
		err = c.Resume()
	case "n":
		err = c.Skip()
	case "s":
		c.Stop()
	case "+":
		c.CycleSpeed()
	case "q":
		c.Stop()
		quit()
		return true
	default:
		out(fmt.Sprintf("unknown command %q (%s)", cmd, controlsHelp))
		return false
	}
	if err != nil {
		out(err.Error())
	}
	return false
}

var _ controller = (*autoplay.Orchestrator)(nil)
