package twilio

import (
	"context"
	"errors"
	"testing"
	"time"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// MockMessageCreator implements MessageCreator
type MockMessageCreator struct {
	CreateMessageFunc func(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
	last              *twilioApi.CreateMessageParams
}

func (m *MockMessageCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	m.last = params
	if m.CreateMessageFunc != nil {
		return m.CreateMessageFunc(params)
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestNormalizePhoneNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"(555) 123-4567", "+15551234567", false},
		{"555.123.4567", "+15551234567", false},
		{"15551234567", "+15551234567", false},
		{"+15551234567", "+15551234567", false},
		{"+44 20 7946 0958", "+442079460958", false},
		{"12345", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePhoneNumber(tt.in, "+1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizePhoneNumber(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidPhoneNumber) {
				t.Errorf("error = %v, want ErrInvalidPhoneNumber", err)
			}
			if got != tt.want {
				t.Errorf("NormalizePhoneNumber(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSend(t *testing.T) {
	api := &MockMessageCreator{}
	n := NewNotifierWithAPI(api, "+15550000000", "")

	if err := n.Send(context.Background(), "5551234567", "BudgetTracker for Checking"); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	if api.last == nil {
		t.Fatal("CreateMessage was not called")
	}
	if *api.last.To != "+15551234567" {
		t.Errorf("To = %q, want +15551234567", *api.last.To)
	}
	if *api.last.From != "+15550000000" {
		t.Errorf("From = %q", *api.last.From)
	}
	if *api.last.Body != "BudgetTracker for Checking" {
		t.Errorf("Body = %q", *api.last.Body)
	}
}

func TestSend_Errors(t *testing.T) {
	api := &MockMessageCreator{
		CreateMessageFunc: func(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
			return nil, errors.New("Status: 400 - ApiError 21211: Invalid 'To' Phone Number")
		},
	}
	n := NewNotifierWithAPI(api, "+15550000000", "+1")

	if err := n.Send(context.Background(), "5551234567", "hi"); err == nil {
		t.Error("Send() expected API error, got nil")
	}

	if err := n.Send(context.Background(), "123", "hi"); !errors.Is(err, ErrInvalidPhoneNumber) {
		t.Errorf("Send() error = %v, want ErrInvalidPhoneNumber", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Send(ctx, "5551234567", "hi"); !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want context.Canceled", err)
	}
}

func TestSend_StopsWaitingWhenContextExpires(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	api := &MockMessageCreator{
		CreateMessageFunc: func(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
			<-release
			return nil, nil
		},
	}
	n := NewNotifierWithAPI(api, "+15550000000", "+1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := n.Send(ctx, "5551234567", "hi")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Send() returned after %v, want it to stop at the deadline", elapsed)
	}
}

func TestNewNotifier_WithTimeout(t *testing.T) {
	n := NewNotifier("AC00000000000000000000000000000000", "token", "+15550000000", "", 5*time.Second)
	if n.api == nil {
		t.Fatal("NewNotifier() left the API client nil")
	}
	if n.defaultCountryCode != "+1" {
		t.Errorf("defaultCountryCode = %q, want +1", n.defaultCountryCode)
	}
}
