package doctor

import (
	"os"

	"golang.org/x/term"

	"speechtext/shutdown"
)

// initialState is the terminal mode captured when the doctor starts.
var initialState *term.State

// resetTerminal puts stdin back into the mode it had at startup; pasted
// keystrokes and device pickers can leave it raw.
func resetTerminal() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	if initialState == nil {
		initialState, _ = term.GetState(fd)
		return
	}
	term.Restore(fd, initialState)
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		resetTerminal()
		println("\nInterrupted")
		os.Exit(1)
	}()
}
