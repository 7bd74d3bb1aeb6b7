package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

const spinnerInterval = 180 * time.Millisecond

// ConnectionSpinner animates the connect phase of a command, before the
// conference view owns the terminal.
type ConnectionSpinner struct {
	message string
	frames  []string
	done    chan struct{}
	stopped bool
}

// NewConnectionSpinner creates a spinner with the given status message.
func NewConnectionSpinner(message string) *ConnectionSpinner {
	return &ConnectionSpinner{
		message: message,
		frames:  spinner.Globe.Frames,
		done:    make(chan struct{}),
	}
}

func (s *ConnectionSpinner) Start() {
	go func() {
		i := 0
		for {
			select {
			case <-s.done:
				return
			default:
				frame := SpinnerStyle.Render(s.frames[i%len(s.frames)])
				fmt.Printf("\r%s %s", frame, s.message)
				i++
				time.Sleep(spinnerInterval)
			}
		}
	}()
}

// Stop halts the animation and clears the spinner line.
func (s *ConnectionSpinner) Stop() {
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.done)
	fmt.Print("\r\033[K")
}

// Success stops the spinner and prints a confirmation line in its place.
func (s *ConnectionSpinner) Success(message string) {
	s.Stop()
	fmt.Printf("%s %s\n", SuccessStyle.Render(IconSuccess), message)
}

// Error stops the spinner and prints a failure line in its place.
func (s *ConnectionSpinner) Error(message string) {
	s.Stop()
	fmt.Printf("%s %s\n", ErrorStyle.Render(IconError), message)
}
