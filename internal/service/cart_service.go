package service

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vinhnt2002/kiet-cake-cart/internal/cache"
	"github.com/vinhnt2002/kiet-cake-cart/internal/domain"
	"github.com/vinhnt2002/kiet-cake-cart/internal/remote"
	"github.com/vinhnt2002/kiet-cake-cart/internal/repository"
)

// RemoteAdapter mirrors local cart intent to the remote cart API.
// Consumers define this interface, not the HTTP implementation.
type RemoteAdapter interface {
	Fetch(ctx context.Context, token string) (*remote.Cart, error)
	Replace(ctx context.Context, token string, items []domain.CartItem) error
	Clear(ctx context.Context, token string) error
	Reconcile(ctx context.Context, token string, items []domain.CartItem) error
}

// TokenSource supplies the bearer credential for a user. A missing
// credential is a valid state: the cart stays local-only.
type TokenSource interface {
	Token(ctx context.Context, userID string) (string, bool)
}

// CartService owns one user-keyed cart store and sequences every
// mutation as [load snapshot, pure transition, persist, remote sync].
// Mutation errors from the transition itself (domain.ErrBakeryConflict,
// domain.ErrMissingBakery, domain.ErrItemNotFound) mean nothing was
// committed. An error matching remote.ErrSyncFailed means the local
// commit succeeded and only the remote mirror is behind; callers treat
// it as a warning, not a failure.
type CartService struct {
	repo   repository.CartRepository
	cache  cache.CartCache
	remote RemoteAdapter
	tokens TokenSource
	sfg    singleflight.Group // Prevents cache stampede
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, adapter RemoteAdapter, tokens TokenSource) *CartService {
	return &CartService{
		repo:   repo,
		cache:  cache,
		remote: adapter,
		tokens: tokens,
	}
}

func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	// Singleflight collapses concurrent misses for the same user into
	// one repository read.
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}

		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cache get error: %v", err) // log cache error but continue
		}

		cart, err = s.loadCart(ctx, userID)
		if err != nil {
			return nil, err
		}

		go func() {
			if err := s.cache.Set(context.Background(), userID, cart); err != nil {
				log.Printf("cache set error: %v", err)
			}
		}()

		return cart, nil
	})

	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// AddToCart commits an item locally, then mirrors the new state to the
// remote cart. A remote cart found holding another bakery's items is
// reset outright (delete then rebuild) rather than merged.
func (s *CartService) AddToCart(ctx context.Context, userID string, item domain.CartItem) error {
	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return err
	}

	if err := cart.Add(item); err != nil {
		return err
	}

	if err := s.persist(ctx, cart); err != nil {
		return err
	}

	return s.syncRemote(ctx, userID, cart)
}

func (s *CartService) RemoveFromCart(ctx context.Context, userID, itemID string) error {
	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return err
	}

	cart.Remove(itemID)

	if err := s.persist(ctx, cart); err != nil {
		return err
	}

	return s.syncRemote(ctx, userID, cart)
}

func (s *CartService) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) error {
	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return err
	}

	if err := cart.UpdateQuantity(itemID, quantity); err != nil {
		return err
	}

	if err := s.persist(ctx, cart); err != nil {
		return err
	}

	return s.syncRemote(ctx, userID, cart)
}

func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if err := s.repo.DeleteCart(ctx, userID); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return err
	}

	s.invalidateCache(userID)

	token, ok := s.tokens.Token(ctx, userID)
	if !ok || token == "" {
		return nil
	}
	if err := s.remote.Clear(ctx, token); err != nil && !errors.Is(err, remote.ErrNotAuthenticated) {
		log.Printf("remote clear error: %v", err)
		return err
	}
	return nil
}

// ChangeBakery rebinds the cart to another bakery. When the change
// really clears a non-empty cart, the remote delete runs first, so no
// reader ever sees the new bakery locally while the old bakery's items
// still sit on the server. A failed remote delete does not stop the
// local switch; it comes back as a remote.ErrSyncFailed warning.
func (s *CartService) ChangeBakery(ctx context.Context, userID, bakeryID string, clearExisting bool) error {
	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return err
	}

	var warn error
	if len(cart.Items) > 0 && clearExisting && bakeryID != cart.CurrentBakeryID {
		if token, ok := s.tokens.Token(ctx, userID); ok && token != "" {
			if err := s.remote.Clear(ctx, token); err != nil && !errors.Is(err, remote.ErrNotAuthenticated) {
				log.Printf("remote clear before bakery switch failed: %v", err)
				warn = err
			}
		}
	}

	if err := cart.ChangeBakery(bakeryID, clearExisting); err != nil {
		return err
	}

	if err := s.persist(ctx, cart); err != nil {
		return err
	}

	return warn
}

// SyncFromRemote is the page-load correction: when the server cart holds
// items and disagrees with the local bakery, local state is rebuilt from
// remote truth. During active editing the local cart stays authoritative;
// across sessions the server does.
func (s *CartService) SyncFromRemote(ctx context.Context, userID string) error {
	token, ok := s.tokens.Token(ctx, userID)
	if !ok || token == "" {
		return nil
	}

	remoteCart, err := s.remote.Fetch(ctx, token)
	if err != nil {
		if errors.Is(err, remote.ErrNotAuthenticated) {
			return nil
		}
		log.Printf("remote fetch error: %v", err)
		return err
	}

	if len(remoteCart.Items) == 0 {
		return nil
	}

	remoteBakery := remoteCart.BakeryID
	if remoteBakery == "" {
		remoteBakery = remoteCart.Items[0].BakeryID
	}

	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return err
	}
	if cart.CurrentBakeryID == remoteBakery && len(cart.Items) > 0 {
		return nil
	}

	cart.Clear()
	for _, it := range remoteCart.Items {
		if err := cart.Add(it); err != nil {
			log.Printf("skipping remote line %s: %v", it.ID, err)
		}
	}

	return s.persist(ctx, cart)
}

func (s *CartService) loadCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCartNotFound) {
			return &domain.Cart{
				UserID:    userID,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			}, nil
		}
		return nil, err
	}
	return cart, nil
}

func (s *CartService) persist(ctx context.Context, cart *domain.Cart) error {
	if err := s.repo.UpsertCart(ctx, cart); err != nil {
		log.Printf("repo upsert cart error: %v", err)
		return err
	}
	s.invalidateCache(cart.UserID)
	return nil
}

func (s *CartService) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		log.Printf("cache invalidate error: %v", err)
	}
}

func (s *CartService) syncRemote(ctx context.Context, userID string, cart *domain.Cart) error {
	token, ok := s.tokens.Token(ctx, userID)
	if !ok || token == "" {
		return nil // guest cart, nothing to reconcile
	}

	if len(cart.Items) == 0 {
		if err := s.remote.Clear(ctx, token); err != nil && !errors.Is(err, remote.ErrNotAuthenticated) {
			log.Printf("remote clear error: %v", err)
			return err
		}
		return nil
	}

	remoteCart, err := s.remote.Fetch(ctx, token)
	if err != nil {
		if errors.Is(err, remote.ErrNotAuthenticated) {
			return nil
		}
		log.Printf("remote fetch error: %v", err)
		return err
	}

	if remote.HasBakeryConflict(remoteCart.Items, cart.CurrentBakeryID) {
		err = s.remote.Reconcile(ctx, token, cart.Items)
	} else {
		err = s.remote.Replace(ctx, token, cart.Items)
	}
	if err != nil {
		if errors.Is(err, remote.ErrNotAuthenticated) {
			return nil
		}
		log.Printf("remote write error: %v", err)
		return err
	}
	return nil
}
