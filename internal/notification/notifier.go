package notification

import (
	"context"
	"log"
)

// Notice is a user-facing message such as "3 synced".
type Notice struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Notifier delivers notices to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// LogNotifier writes notices to the process log.
type LogNotifier struct{}

// Notify logs n.
func (LogNotifier) Notify(_ context.Context, n Notice) {
	log.Printf("Notice: %s: %s", n.Title, n.Body)
}

// Multi fans a notice out to every notifier in order.
type Multi []Notifier

// Notify delivers n to each notifier.
func (m Multi) Notify(ctx context.Context, n Notice) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}
