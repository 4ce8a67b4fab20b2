// Package mailer dispatches transactional e-mail jobs. The service never
// renders or sends mail itself; it enqueues a template name plus context
// for a downstream mailer daemon.
package mailer

import "context"

// Message is one mail job. Context carries template variables such as the
// verification code. Email is the recipient, which for an address change is
// the old address, not the pending one.
type Message struct {
	ID       string         `json:"id"`
	UID      int64          `json:"uid"`
	Email    string         `json:"email"`
	Template string         `json:"template"`
	Context  map[string]any `json:"context,omitempty"`
}

// Mailer enqueues mail jobs. Implementations must not block on actual
// delivery.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}
