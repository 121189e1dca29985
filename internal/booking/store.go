//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_booking_store.go -package=mocks
package booking

import "context"

// Store is the persisted booking log addressed by id.
type Store interface {
	List(ctx context.Context) ([]Booking, error)
	Get(ctx context.Context, id string) (Booking, error)
	Create(ctx context.Context, b Booking) (Booking, error)
	Update(ctx context.Context, b Booking) error
}
