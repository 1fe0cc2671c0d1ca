package institution

import (
	"errors"
	"time"
)

// Domain errors
var (
	ErrLinkNotFound = errors.New("institution link not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Link is one user's authorised connection to one financial institution.
// AccessToken is held decrypted in memory only; storage keeps it encrypted.
type Link struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	Name        string    `json:"name"`
	ItemID      string    `json:"itemId"`
	AccessToken string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CreateParams contains parameters for registering a new link
type CreateParams struct {
	UserID      int64
	Name        string
	ItemID      string
	AccessToken string
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	if p.Name == "" {
		return errors.New("institution name is required")
	}
	if p.AccessToken == "" {
		return errors.New("access token is required")
	}
	return nil
}
