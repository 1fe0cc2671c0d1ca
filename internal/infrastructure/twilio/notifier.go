// Package twilio delivers budget reminders as SMS.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ErrInvalidPhoneNumber is returned for numbers that cannot be put in E.164 form.
var ErrInvalidPhoneNumber = errors.New("invalid phone number")

// MessageCreator is the part of the Twilio REST API the notifier uses.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Notifier sends SMS through Twilio
type Notifier struct {
	api                MessageCreator
	from               string
	defaultCountryCode string
}

// NewNotifier creates a notifier for the given account. defaultCountryCode
// (e.g. "+1") is prefixed to national numbers. timeout bounds each HTTP
// request to Twilio; zero keeps the library default.
func NewNotifier(accountSID, authToken, from, defaultCountryCode string, timeout time.Duration) *Notifier {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return NewNotifierWithAPI(client.Api, from, defaultCountryCode)
}

// NewNotifierWithAPI creates a notifier around an existing API client.
func NewNotifierWithAPI(api MessageCreator, from, defaultCountryCode string) *Notifier {
	if defaultCountryCode == "" {
		defaultCountryCode = "+1"
	}
	return &Notifier{api: api, from: from, defaultCountryCode: defaultCountryCode}
}

// Send delivers message to phoneNumber. The Twilio client takes no context,
// so Send stops waiting once ctx is done; the request itself is bounded by
// the client timeout.
func (n *Notifier) Send(ctx context.Context, phoneNumber, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	to, err := NormalizePhoneNumber(phoneNumber, n.defaultCountryCode)
	if err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(n.from)
	params.SetBody(message)

	resp, err := n.create(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send sms: %w", err)
	}

	if resp != nil && resp.Sid != nil {
		log.Printf("SMS queued: %s", *resp.Sid)
	}
	return nil
}

type createResult struct {
	msg *twilioApi.ApiV2010Message
	err error
}

func (n *Notifier) create(ctx context.Context, params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	done := make(chan createResult, 1)
	go func() {
		msg, err := n.api.CreateMessage(params)
		done <- createResult{msg: msg, err: err}
	}()

	select {
	case res := <-done:
		return res.msg, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NormalizePhoneNumber returns number in E.164 form. Numbers without a
// leading "+" are treated as national and get defaultCountryCode.
func NormalizePhoneNumber(number, defaultCountryCode string) (string, error) {
	number = strings.TrimSpace(number)
	international := strings.HasPrefix(number, "+")

	var digits strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	if international {
		if len(d) < 8 || len(d) > 15 {
			return "", fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, number)
		}
		return "+" + d, nil
	}

	code := strings.TrimPrefix(defaultCountryCode, "+")
	switch {
	case len(d) == 10:
		return "+" + code + d, nil
	case len(d) == 10+len(code) && strings.HasPrefix(d, code):
		return "+" + d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, number)
	}
}
