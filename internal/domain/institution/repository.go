package institution

import "context"

// Repository defines the interface for institution link data access
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Link, error)
	GetByID(ctx context.Context, id int64) (*Link, error)
	ListByUserID(ctx context.Context, userID int64) ([]*Link, error)
	// List returns every link, ordered by ID. Used by the daily account refresh.
	List(ctx context.Context) ([]*Link, error)
	// Delete removes a link and cascades to its accounts and their trackers.
	Delete(ctx context.Context, id int64) error
}
