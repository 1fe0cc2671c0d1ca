package user

import (
	"errors"
	"time"
)

var ErrUserNotFound = errors.New("user not found")

// User is read-only here: owned by the account service that handles sign-up.
type User struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	// NotificationsEnabled gates outbound SMS. Users without it still have
	// their schedules advanced.
	NotificationsEnabled bool      `json:"notificationsEnabled"`
	Timezone             string    `json:"timezone"`
	CreatedAt            time.Time `json:"createdAt"`
}

// CanReceiveSMS reports whether a reminder may be sent to this user.
func (u *User) CanReceiveSMS() bool {
	return u.NotificationsEnabled && u.PhoneNumber != ""
}
