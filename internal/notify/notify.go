// Package notify shows desktop notifications.
package notify

import (
	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
)

const title = "Dictator"

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(message string)
}

type desktop struct {
	send func(title, message string) error
	log  zerolog.Logger
}

// NewDesktop returns a notifier backed by the OS notification service.
// Delivery failures are logged and otherwise ignored.
func NewDesktop(log zerolog.Logger) Notifier {
	return &desktop{
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		log: log,
	}
}

func (d *desktop) Notify(message string) {
	if err := d.send(title, message); err != nil {
		d.log.Debug().Err(err).Str("message", message).Msg("Notification not delivered")
	}
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(string) {}
