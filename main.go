// Command mcslp is the CLI bootstrap for the Minecraft SLP discovery
// scanner: flag parsing, signal handling, and keystroke control are
// the external collaborators spec.md §1 leaves out of the core; this
// file is the minimal glue that wires them to the Control Surface.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mcslp/backend/application"
	"mcslp/backend/control"
	"mcslp/backend/protocol"
)

func main() {
	var (
		appDir = flag.String("dir", "", "scanner state directory (default: ~/.minecraft-scanner)")
		strict = flag.Bool("strict-framing", false, "prepend a VarInt length to the handshake packet")
	)
	flag.Parse()

	framing := protocol.FramingUnframed
	if *strict {
		framing = protocol.FramingStrict
	}

	app, err := application.New(*appDir, framing)
	if err != nil {
		fmt.Fprintln(os.Stderr, "startup failed:", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		app.Control.Commands() <- control.CommandStop
	}()

	go readKeystrokes(app.Control)

	if err := app.Run(ctx); err != nil {
		app.Logger.WithError(err).Error("scanner exited with error")
		os.Exit(1)
	}
	os.Exit(0)
}

// readKeystrokes maps P/S/R/Q to the Control Surface per §6's control
// channel contract. Ctrl-C is handled by the signal goroutine instead
// since the terminal delivers it as SIGINT, not a readable byte.
func readKeystrokes(surf *control.Surface) {
	reader := bufio.NewReader(os.Stdin)
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return
		}
		switch b {
		case 'p', 'P':
			surf.Commands() <- control.CommandPauseToggle
		case 's', 'S':
			surf.Commands() <- control.CommandSaveProgress
		case 'r', 'R':
			surf.Commands() <- control.CommandResetStats
		case 'q', 'Q':
			surf.Commands() <- control.CommandStop
			return
		}
	}
}
