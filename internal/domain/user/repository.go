package user

import "context"

// Repository defines the interface for user data access
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
}
