// Package poller empties carts when an order completes elsewhere in the
// system: the order pipeline publishes order-completed events, and a
// cart that was just checked out should not greet the user again on the
// next page load.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/segmentio/kafka-go"

	"github.com/vinhnt2002/kiet-cake-cart/internal/cache"
	"github.com/vinhnt2002/kiet-cake-cart/internal/repository"
)

// messageReader is the slice of kafka.Reader the poller needs; tests
// substitute a stub.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type orderCompleted struct {
	UserID  string `json:"user_id"`
	OrderID string `json:"order_id"`
}

type Poller struct {
	repo   repository.CartRepository
	cache  cache.CartCache
	reader messageReader
}

func NewPoller(repo repository.CartRepository, cartCache cache.CartCache, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    "order-completed",
		GroupID:  "cart-engine-consumer",
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{repo: repo, cache: cartCache, reader: reader}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.consumeOne(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		log.Printf("error closing reader: %v", err)
	}
}

func (p *Poller) consumeOne(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("error reading message: %v", err)
		}
		return
	}

	var event orderCompleted
	if err := json.Unmarshal(m.Value, &event); err != nil {
		log.Printf("error parsing message: %v", err)
		return
	}
	if event.UserID == "" {
		log.Println("missing or invalid user_id")
		return
	}

	if err := p.repo.DeleteCart(ctx, event.UserID); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		log.Printf("failed to delete cart: %v", err)
	}

	if err := p.cache.Delete(ctx, event.UserID); err != nil {
		log.Printf("failed to delete cache: %v", err)
	}
}
