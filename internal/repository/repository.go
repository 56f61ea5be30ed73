package repository

import (
	"context"

	"github.com/vinhnt2002/kiet-cake-cart/internal/domain"
)

// CartRepository is the persistence contract for cart snapshots.
// Consumers define this interface, not the MongoDB implementation.
// Only {user_id, items, current_bakery_id} plus timestamps are stored;
// transient state like the switch-confirmation modal never persists.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	UpsertCart(ctx context.Context, cart *domain.Cart) error
	DeleteCart(ctx context.Context, userID string) error
}
