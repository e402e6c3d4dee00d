// Package prompt asks the operator for confirmation on the terminal.
package prompt

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the operator interrupts a prompt.
var ErrAborted = errors.New("aborted")

// Confirm asks a yes/no question. Anything but an explicit yes is a no.
func Confirm(label string) (bool, error) {
	p := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	if _, err := p.Run(); err != nil {
		switch {
		case errors.Is(err, promptui.ErrInterrupt):
			return false, ErrAborted
		case errors.Is(err, promptui.ErrAbort):
			return false, nil
		default:
			return false, fmt.Errorf("prompt: %w", err)
		}
	}
	return true, nil
}

// ConfirmWithForce skips the question when force is set.
func ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return Confirm(label)
}
