package domain

import "errors"

var (
	ErrMissingBakery  = errors.New("item has no bakery id")
	ErrBakeryConflict = errors.New("item belongs to a different bakery")
	ErrItemNotFound   = errors.New("item not found in cart")
)

// Add puts an item into the cart. An item from the bakery the cart is
// already bound to merges by item ID (quantities summed, line price
// recomputed); an item from another bakery fails with ErrBakeryConflict
// and leaves the cart untouched. Resolving that conflict is the switch
// coordinator's job, never Add's.
func (c *Cart) Add(item CartItem) error {
	if item.BakeryID == "" {
		return ErrMissingBakery
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	if item.Price == 0 {
		item.Price = item.Config.UnitPrice * int64(item.Quantity)
	}

	if len(c.Items) == 0 || c.CurrentBakeryID == "" {
		c.Items = []CartItem{item}
		c.CurrentBakeryID = item.BakeryID
		return nil
	}

	if item.BakeryID != c.CurrentBakeryID {
		return ErrBakeryConflict
	}

	for i := range c.Items {
		if c.Items[i].ID == item.ID {
			c.Items[i].Quantity += item.Quantity
			c.Items[i].Price = c.Items[i].Config.UnitPrice * int64(c.Items[i].Quantity)
			return nil
		}
	}

	c.Items = append(c.Items, item)
	return nil
}

// Remove drops the line with the given id. Removing an absent id is a
// no-op. Emptying the cart also resets CurrentBakeryID.
func (c *Cart) Remove(id string) {
	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	c.Items = kept
	if len(c.Items) == 0 {
		c.Items = nil
		c.CurrentBakeryID = ""
	}
}

// UpdateQuantity sets a line's quantity and recomputes its price from
// the config snapshot. Quantities of zero or below are kept as given;
// callers that want "decrement past one removes the line" route that
// through Remove themselves.
func (c *Cart) UpdateQuantity(id string, quantity int) error {
	for i := range c.Items {
		if c.Items[i].ID == id {
			c.Items[i].Quantity = quantity
			c.Items[i].Price = c.Items[i].Config.UnitPrice * int64(quantity)
			return nil
		}
	}
	return ErrItemNotFound
}

// Clear resets to the empty state. Safe to call on an already-empty cart.
func (c *Cart) Clear() {
	c.Items = nil
	c.CurrentBakeryID = ""
}

// ChangeBakery rebinds the cart to another bakery. With items present it
// only proceeds when clearExisting is set or the bakery is unchanged;
// it refuses to mix two bakeries' items.
func (c *Cart) ChangeBakery(bakeryID string, clearExisting bool) error {
	if len(c.Items) == 0 {
		c.CurrentBakeryID = bakeryID
		return nil
	}
	if !clearExisting && bakeryID != c.CurrentBakeryID {
		return ErrBakeryConflict
	}
	if clearExisting {
		c.Items = nil
	}
	c.CurrentBakeryID = bakeryID
	return nil
}
