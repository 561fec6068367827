// Package mailer is the notification gateway boundary. Delivery must be
// confirmed before a command that sends mail reports success.
package mailer

import "context"

// Sender dispatches a single message. Implementations return an error when
// dispatch could not be confirmed; callers treat that as command failure.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}
