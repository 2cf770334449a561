package teardown

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(question string) (bool, error)
}

// PromptConfirmer asks on the terminal. Anything but y or yes declines.
type PromptConfirmer struct {
	Stdin  io.ReadCloser
	Stdout io.Writer
}

func (p PromptConfirmer) Confirm(question string) (bool, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          question + " [y/N]: ",
		Stdin:           p.Stdin,
		Stdout:          p.Stdout,
		InterruptPrompt: "^C",
	})
	if err != nil {
		return false, fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	line, err := rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("readline error: %w", err)
	}
	return IsYes(line), nil
}

// IsYes reports whether answer accepts a confirmation prompt.
func IsYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
