package application

import "context"

// Notifier delivers short human-readable alerts such as a device dropping
// offline.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type NoopNotifier struct{}

func (n *NoopNotifier) Notify(_ context.Context, _ string) error {
	return nil
}
