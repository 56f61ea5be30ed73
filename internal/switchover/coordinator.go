// Package switchover holds the confirmation state machine that sits
// between "this item belongs to another bakery" and the user's decision.
// A cart never mixes bakeries; the only way past a conflict is an
// explicit confirm, which clears the existing cart and commits the
// pending item, or a cancel, which discards it.
package switchover

import (
	"context"
	"errors"
	"sync"

	"github.com/vinhnt2002/kiet-cake-cart/internal/domain"
	"github.com/vinhnt2002/kiet-cake-cart/internal/remote"
)

var ErrNoPendingDecision = errors.New("no bakery switch is pending")

// CartOps is the slice of the cart service the coordinator drives.
type CartOps interface {
	AddToCart(ctx context.Context, userID string, item domain.CartItem) error
	ChangeBakery(ctx context.Context, userID, bakeryID string, clearExisting bool) error
}

// PendingDecision is the open half of the state machine: the rejected
// item waiting on the user, plus the two display names the confirmation
// prompt shows. Never persisted.
type PendingDecision struct {
	Item              domain.CartItem
	CurrentBakeryName string
	NewBakeryName     string
}

// Coordinator tracks at most one pending decision per user. Proposing a
// second conflict while one is open replaces the first: last writer
// wins, and that transition is deliberate rather than an accident of
// overwritten callbacks.
type Coordinator struct {
	mu      sync.Mutex
	carts   CartOps
	pending map[string]PendingDecision
}

func NewCoordinator(carts CartOps) *Coordinator {
	return &Coordinator{
		carts:   carts,
		pending: make(map[string]PendingDecision),
	}
}

// Propose opens (or replaces) the pending decision for a user after a
// cross-bakery add was rejected.
func (c *Coordinator) Propose(userID string, item domain.CartItem, currentName, newName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[userID] = PendingDecision{
		Item:              item,
		CurrentBakeryName: currentName,
		NewBakeryName:     newName,
	}
}

// Pending returns the open decision for a user, if any.
func (c *Coordinator) Pending(userID string) (PendingDecision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.pending[userID]
	return d, ok
}

// Confirm runs the switch: clear-and-rebind the cart to the new bakery,
// then commit the item that was waiting. The decision closes before the
// cart calls run, so a double confirm cannot commit twice. The add lands
// in a freshly cleared cart and cannot hit another conflict. An error
// matching remote.ErrSyncFailed from the underlying service is a
// warning: the local switch is complete.
func (c *Coordinator) Confirm(ctx context.Context, userID string) error {
	c.mu.Lock()
	d, ok := c.pending[userID]
	if ok {
		delete(c.pending, userID)
	}
	c.mu.Unlock()

	if !ok {
		return ErrNoPendingDecision
	}

	var warn error
	if err := c.carts.ChangeBakery(ctx, userID, d.Item.BakeryID, true); err != nil {
		if !errors.Is(err, remote.ErrSyncFailed) {
			return err
		}
		warn = err // remote delete failed, local switch still holds
	}
	if err := c.carts.AddToCart(ctx, userID, d.Item); err != nil {
		return err
	}
	return warn
}

// Cancel discards the pending item and leaves the cart as it was.
// Reports whether a decision was actually open.
func (c *Coordinator) Cancel(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[userID]
	delete(c.pending, userID)
	return ok
}
