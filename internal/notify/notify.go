package notify

import (
	"context"

	"go.uber.org/multierr"
)

// Field is one labelled value of a message.
type Field struct {
	Name  string
	Value string
}

// Message is a transport-neutral notification.
type Message struct {
	Title     string
	URL       string
	Thumbnail string
	Fields    []Field
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Multi delivers to every notifier and reports all failures together.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, msg Message) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, msg))
	}
	return err
}
