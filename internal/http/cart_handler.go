package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vinhnt2002/kiet-cake-cart/internal/domain"
	"github.com/vinhnt2002/kiet-cake-cart/internal/remote"
	"github.com/vinhnt2002/kiet-cake-cart/internal/switchover"
)

// CartService is what the handlers need from the cart engine.
type CartService interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddToCart(ctx context.Context, userID string, item domain.CartItem) error
	RemoveFromCart(ctx context.Context, userID, itemID string) error
	UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) error
	ClearCart(ctx context.Context, userID string) error
	ChangeBakery(ctx context.Context, userID, bakeryID string, clearExisting bool) error
	SyncFromRemote(ctx context.Context, userID string) error
}

// SwitchCoordinator is the confirmation state machine behind the
// cross-bakery dialog.
type SwitchCoordinator interface {
	Propose(userID string, item domain.CartItem, currentName, newName string)
	Pending(userID string) (switchover.PendingDecision, bool)
	Confirm(ctx context.Context, userID string) error
	Cancel(userID string) bool
}

type CartHandler struct {
	carts    CartService
	switches SwitchCoordinator
	timeout  time.Duration
}

func NewCartHandler(carts CartService, switches SwitchCoordinator, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:    carts,
		switches: switches,
		timeout:  timeout,
	}
}

type ItemConfigDTO struct {
	UnitPrice     int64             `json:"unitPrice"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	Type          string            `json:"type,omitempty"`
	Customization map[string]string `json:"customization,omitempty"`
}

type AddItemRequestDTO struct {
	ItemID     string        `json:"itemId"`
	BakeryID   string        `json:"bakeryId"`
	BakeryName string        `json:"bakeryName"`
	Quantity   int           `json:"quantity"`
	Config     ItemConfigDTO `json:"config"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type ChangeBakeryRequestDTO struct {
	BakeryID      string `json:"bakeryId"`
	ClearExisting bool   `json:"clearExisting"`
}

// BakerySwitchDTO is the dialog descriptor the UI renders: open flag
// plus the two display names the prompt shows.
type BakerySwitchDTO struct {
	IsOpen            bool   `json:"isOpen"`
	CurrentBakeryName string `json:"currentBakeryName,omitempty"`
	NewBakeryName     string `json:"newBakeryName,omitempty"`
}

type CartResponseDTO struct {
	Cart         *domain.Cart     `json:"cart"`
	BakerySwitch *BakerySwitchDTO `json:"bakerySwitch,omitempty"`
	Warning      string           `json:"warning,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cart, err := h.carts.GetCart(ctx, userID)
	if err != nil {
		logError(ctx, "load cart", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load cart")
		return
	}

	respondJSON(w, http.StatusOK, CartResponseDTO{
		Cart:         cart,
		BakerySwitch: h.switchDescriptor(userID),
	})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.ItemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "itemId is required")
		return
	}
	if req.Quantity < 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 0 and 99")
		return
	}

	item := domain.CartItem{
		ID:       req.ItemID,
		BakeryID: req.BakeryID,
		Quantity: req.Quantity,
		Config: domain.ItemConfig{
			UnitPrice:     req.Config.UnitPrice,
			Name:          req.Config.Name,
			BakeryName:    req.BakeryName,
			Description:   req.Config.Description,
			Type:          req.Config.Type,
			Customization: req.Config.Customization,
		},
		AddedAt: time.Now(),
	}

	err := h.carts.AddToCart(ctx, userID, item)
	switch {
	case err == nil, errors.Is(err, remote.ErrSyncFailed):
		cart, getErr := h.carts.GetCart(ctx, userID)
		if getErr != nil {
			logError(ctx, "load cart", getErr)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to load cart")
			return
		}
		respondJSON(w, http.StatusCreated, CartResponseDTO{
			Cart:    cart,
			Warning: warningMessage(err),
		})
	case errors.Is(err, domain.ErrMissingBakery):
		respondError(w, http.StatusBadRequest, "missing_bakery", "item has no bakery id")
	case errors.Is(err, domain.ErrBakeryConflict):
		h.openSwitch(ctx, userID, item, req.BakeryName)
		respondJSON(w, http.StatusConflict, CartResponseDTO{
			BakerySwitch: h.switchDescriptor(userID),
		})
	default:
		logError(ctx, "add item", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to add item")
	}
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	itemID := chi.URLParam(r, "item_id")
	if itemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item_id is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	// The engine keeps zero-quantity lines; a decrement below one is the
	// UI's cue to call the remove endpoint instead.
	err := h.carts.UpdateQuantity(ctx, userID, itemID, req.Quantity)
	switch {
	case err == nil, errors.Is(err, remote.ErrSyncFailed):
		h.respondWithCart(ctx, w, userID, warningMessage(err))
	case errors.Is(err, domain.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "item_not_found", "item not in cart")
	default:
		logError(ctx, "update quantity", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to update quantity")
	}
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	itemID := chi.URLParam(r, "item_id")
	if itemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item_id is required")
		return
	}

	err := h.carts.RemoveFromCart(ctx, userID, itemID)
	switch {
	case err == nil, errors.Is(err, remote.ErrSyncFailed):
		h.respondWithCart(ctx, w, userID, warningMessage(err))
	default:
		logError(ctx, "remove item", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to remove item")
	}
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	err := h.carts.ClearCart(ctx, userID)
	switch {
	case err == nil, errors.Is(err, remote.ErrSyncFailed):
		h.respondWithCart(ctx, w, userID, warningMessage(err))
	default:
		logError(ctx, "clear cart", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to clear cart")
	}
}

func (h *CartHandler) ChangeBakery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req ChangeBakeryRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.BakeryID == "" {
		respondError(w, http.StatusBadRequest, "missing_bakery", "bakeryId is required")
		return
	}

	err := h.carts.ChangeBakery(ctx, userID, req.BakeryID, req.ClearExisting)
	switch {
	case err == nil, errors.Is(err, remote.ErrSyncFailed):
		h.respondWithCart(ctx, w, userID, warningMessage(err))
	case errors.Is(err, domain.ErrBakeryConflict):
		respondError(w, http.StatusConflict, "bakery_conflict", "cart holds another bakery's items; pass clearExisting to replace them")
	default:
		logError(ctx, "change bakery", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to change bakery")
	}
}

func (h *CartHandler) ConfirmSwitch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	err := h.switches.Confirm(ctx, userID)
	switch {
	case err == nil, errors.Is(err, remote.ErrSyncFailed):
		h.respondWithCart(ctx, w, userID, warningMessage(err))
	case errors.Is(err, switchover.ErrNoPendingDecision):
		respondError(w, http.StatusNotFound, "no_pending_switch", "no bakery switch is awaiting confirmation")
	default:
		logError(ctx, "confirm bakery switch", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to switch bakery")
	}
}

func (h *CartHandler) CancelSwitch(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	if !h.switches.Cancel(userID) {
		respondError(w, http.StatusNotFound, "no_pending_switch", "no bakery switch is awaiting confirmation")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	h.respondWithCart(ctx, w, userID, "")
}

func (h *CartHandler) SyncCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	err := h.carts.SyncFromRemote(ctx, userID)
	switch {
	case err == nil, errors.Is(err, remote.ErrSyncFailed):
		h.respondWithCart(ctx, w, userID, warningMessage(err))
	default:
		logError(ctx, "sync cart", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to sync cart")
	}
}

// openSwitch hands a rejected cross-bakery add to the coordinator. The
// current bakery's display name comes from what is already in the cart.
func (h *CartHandler) openSwitch(ctx context.Context, userID string, item domain.CartItem, newName string) {
	currentName := ""
	if cart, err := h.carts.GetCart(ctx, userID); err == nil && len(cart.Items) > 0 {
		currentName = cart.Items[0].Config.BakeryName
	}
	h.switches.Propose(userID, item, currentName, newName)
}

func (h *CartHandler) switchDescriptor(userID string) *BakerySwitchDTO {
	d, ok := h.switches.Pending(userID)
	if !ok {
		return &BakerySwitchDTO{IsOpen: false}
	}
	return &BakerySwitchDTO{
		IsOpen:            true,
		CurrentBakeryName: d.CurrentBakeryName,
		NewBakeryName:     d.NewBakeryName,
	}
}

func (h *CartHandler) respondWithCart(ctx context.Context, w http.ResponseWriter, userID, warning string) {
	cart, err := h.carts.GetCart(ctx, userID)
	if err != nil {
		logError(ctx, "load cart", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load cart")
		return
	}
	respondJSON(w, http.StatusOK, CartResponseDTO{
		Cart:         cart,
		BakerySwitch: h.switchDescriptor(userID),
		Warning:      warning,
	})
}

// logError records a server-side failure with the request id so the
// log line can be matched to the X-Request-ID the client received.
func logError(ctx context.Context, action string, err error) {
	log.Printf("request %s: %s: %v", getRequestID(ctx), action, err)
}

// warningMessage turns a non-fatal sync error into the toast text the
// UI shows; any other error yields no warning.
func warningMessage(err error) string {
	if errors.Is(err, remote.ErrSyncFailed) {
		return "cart saved locally; server sync is pending"
	}
	return ""
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
