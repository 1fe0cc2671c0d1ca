package notification

import "context"

// Notifier delivers a text message to a phone number.
// Implemented by the Twilio client in the infrastructure layer.
type Notifier interface {
	Send(ctx context.Context, phoneNumber, message string) error
}
