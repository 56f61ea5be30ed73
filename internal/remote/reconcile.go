package remote

import "github.com/vinhnt2002/kiet-cake-cart/internal/domain"

// HasBakeryConflict reports whether any remote line belongs to a bakery
// other than the one local state is about to commit. This is the trigger
// for the destructive delete-then-rebuild reset.
func HasBakeryConflict(remoteItems []domain.CartItem, bakeryID string) bool {
	if bakeryID == "" {
		return false
	}
	for _, it := range remoteItems {
		if it.BakeryID != bakeryID {
			return true
		}
	}
	return false
}

// MergeLines collapses duplicate item IDs into single lines, summing
// quantities and recomputing the line price from the config snapshot.
// Order of first appearance is preserved.
func MergeLines(items []domain.CartItem) []domain.CartItem {
	if len(items) == 0 {
		return nil
	}

	merged := make([]domain.CartItem, 0, len(items))
	index := make(map[string]int, len(items))

	for _, it := range items {
		if pos, ok := index[it.ID]; ok {
			merged[pos].Quantity += it.Quantity
			merged[pos].Price = merged[pos].Config.UnitPrice * int64(merged[pos].Quantity)
			continue
		}
		index[it.ID] = len(merged)
		merged = append(merged, it)
	}
	return merged
}
