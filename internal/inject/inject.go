// Package inject hands transcripts to the user's desktop.
package inject

import (
	"context"
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
)

// ErrClipboardUnavailable is returned when no clipboard backend can be used.
var ErrClipboardUnavailable = errors.New("clipboard unavailable")

// Injector delivers text to wherever the user will paste it.
type Injector interface {
	Copy(ctx context.Context, text string) error
}

type clipboardInjector struct {
	write       func(string) error
	unsupported bool
}

// NewClipboard returns an injector that places text on the system clipboard.
func NewClipboard() Injector {
	return &clipboardInjector{
		write:       clipboard.WriteAll,
		unsupported: clipboard.Unsupported,
	}
}

func (c *clipboardInjector) Copy(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.unsupported {
		return ErrClipboardUnavailable
	}
	if err := c.write(text); err != nil {
		return fmt.Errorf("%w: %w", ErrClipboardUnavailable, err)
	}
	return nil
}

// Nop discards text.
type Nop struct{}

func (Nop) Copy(context.Context, string) error { return nil }
