package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vinhnt2002/kiet-cake-cart/internal/domain"
	"github.com/vinhnt2002/kiet-cake-cart/internal/remote"
	"github.com/vinhnt2002/kiet-cake-cart/internal/switchover"
)

type serviceMock struct {
	cart      *domain.Cart
	getErr    error
	addErr    error
	removeErr error
	updateErr error
	clearErr  error
	changeErr error
	syncErr   error
}

func (s *serviceMock) GetCart(context.Context, string) (*domain.Cart, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.cart == nil {
		return &domain.Cart{UserID: "u1"}, nil
	}
	return s.cart, nil
}

func (s *serviceMock) AddToCart(context.Context, string, domain.CartItem) error {
	return s.addErr
}

func (s *serviceMock) RemoveFromCart(context.Context, string, string) error {
	return s.removeErr
}

func (s *serviceMock) UpdateQuantity(context.Context, string, string, int) error {
	return s.updateErr
}

func (s *serviceMock) ClearCart(context.Context, string) error {
	return s.clearErr
}

func (s *serviceMock) ChangeBakery(context.Context, string, string, bool) error {
	return s.changeErr
}

func (s *serviceMock) SyncFromRemote(context.Context, string) error {
	return s.syncErr
}

type coordinatorMock struct {
	proposed   *switchover.PendingDecision
	confirmErr error
	hadPending bool
}

func (c *coordinatorMock) Propose(_ string, item domain.CartItem, currentName, newName string) {
	c.proposed = &switchover.PendingDecision{
		Item:              item,
		CurrentBakeryName: currentName,
		NewBakeryName:     newName,
	}
}

func (c *coordinatorMock) Pending(string) (switchover.PendingDecision, bool) {
	if c.proposed == nil {
		return switchover.PendingDecision{}, false
	}
	return *c.proposed, true
}

func (c *coordinatorMock) Confirm(context.Context, string) error {
	if c.confirmErr != nil {
		return c.confirmErr
	}
	c.proposed = nil
	return nil
}

func (c *coordinatorMock) Cancel(string) bool {
	had := c.proposed != nil || c.hadPending
	c.proposed = nil
	return had
}

func authedRequest(method, target string, body []byte) *http.Request {
	var request *http.Request
	if body != nil {
		request = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		request = httptest.NewRequest(method, target, nil)
	}
	ctx := context.WithValue(request.Context(), "user_id", "u1")
	ctx = context.WithValue(ctx, "request_id", "test-request-123")
	return request.WithContext(ctx)
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func sampleCart() *domain.Cart {
	return &domain.Cart{
		UserID:          "u1",
		CurrentBakeryID: "B1",
		Items: []domain.CartItem{
			{
				ID:       "cake1",
				BakeryID: "B1",
				Quantity: 2,
				Price:    200000,
				Config:   domain.ItemConfig{UnitPrice: 100000, BakeryName: "Bakery B1"},
			},
		},
	}
}

func TestGetCart_Success(t *testing.T) {
	handler := NewCartHandler(&serviceMock{cart: sampleCart()}, &coordinatorMock{}, 5*time.Second)

	recorder := httptest.NewRecorder()
	handler.GetCart(recorder, authedRequest("GET", "/", nil))

	if recorder.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}

	var response CartResponseDTO
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Cart.CurrentBakeryID != "B1" {
		t.Errorf("Expected bakery B1, got %q", response.Cart.CurrentBakeryID)
	}
	if response.BakerySwitch == nil || response.BakerySwitch.IsOpen {
		t.Errorf("Expected a closed switch descriptor, got %+v", response.BakerySwitch)
	}
}

func TestGetCart_Unauthorized(t *testing.T) {
	handler := NewCartHandler(&serviceMock{}, &coordinatorMock{}, 5*time.Second)

	recorder := httptest.NewRecorder()
	handler.GetCart(recorder, httptest.NewRequest("GET", "/", nil)) // no user_id in context

	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("Expected status code %d, got %d", http.StatusUnauthorized, recorder.Code)
	}

	var response ErrorResponse
	json.NewDecoder(recorder.Body).Decode(&response)
	if response.Code != "unauthorized" {
		t.Errorf("Expected error code 'unauthorized', got '%s'", response.Code)
	}
}

func TestAddItem_Success(t *testing.T) {
	handler := NewCartHandler(&serviceMock{cart: sampleCart()}, &coordinatorMock{}, 5*time.Second)

	body, _ := json.Marshal(AddItemRequestDTO{
		ItemID:     "cake1",
		BakeryID:   "B1",
		BakeryName: "Bakery B1",
		Quantity:   2,
		Config:     ItemConfigDTO{UnitPrice: 100000, Name: "Cake cake1"},
	})

	recorder := httptest.NewRecorder()
	handler.AddItem(recorder, authedRequest("POST", "/items", body))

	if recorder.Code != http.StatusCreated {
		t.Errorf("Expected status code %d, got %d", http.StatusCreated, recorder.Code)
	}

	var response CartResponseDTO
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Warning != "" {
		t.Errorf("Expected no warning, got %q", response.Warning)
	}
}

func TestAddItem_BakeryConflictOpensSwitch(t *testing.T) {
	coord := &coordinatorMock{}
	handler := NewCartHandler(&serviceMock{cart: sampleCart(), addErr: domain.ErrBakeryConflict}, coord, 5*time.Second)

	body, _ := json.Marshal(AddItemRequestDTO{
		ItemID:     "cake2",
		BakeryID:   "B2",
		BakeryName: "Bakery B2",
		Quantity:   1,
	})

	recorder := httptest.NewRecorder()
	handler.AddItem(recorder, authedRequest("POST", "/items", body))

	if recorder.Code != http.StatusConflict {
		t.Errorf("Expected status code %d, got %d", http.StatusConflict, recorder.Code)
	}
	if coord.proposed == nil {
		t.Fatal("Expected the conflict to open a pending switch")
	}
	if coord.proposed.CurrentBakeryName != "Bakery B1" || coord.proposed.NewBakeryName != "Bakery B2" {
		t.Errorf("Unexpected prompt names: %+v", coord.proposed)
	}

	var response CartResponseDTO
	json.NewDecoder(recorder.Body).Decode(&response)
	if response.BakerySwitch == nil || !response.BakerySwitch.IsOpen {
		t.Errorf("Expected an open switch descriptor, got %+v", response.BakerySwitch)
	}
}

func TestAddItem_MissingBakery(t *testing.T) {
	handler := NewCartHandler(&serviceMock{addErr: domain.ErrMissingBakery}, &coordinatorMock{}, 5*time.Second)

	body, _ := json.Marshal(AddItemRequestDTO{ItemID: "cake1", Quantity: 1})

	recorder := httptest.NewRecorder()
	handler.AddItem(recorder, authedRequest("POST", "/items", body))

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, recorder.Code)
	}

	var response ErrorResponse
	json.NewDecoder(recorder.Body).Decode(&response)
	if response.Code != "missing_bakery" {
		t.Errorf("Expected error code 'missing_bakery', got '%s'", response.Code)
	}
}

func TestAddItem_SyncFailureIsWarningNotError(t *testing.T) {
	svc := &serviceMock{
		cart:   sampleCart(),
		addErr: fmt.Errorf("%w: connection refused", remote.ErrSyncFailed),
	}
	handler := NewCartHandler(svc, &coordinatorMock{}, 5*time.Second)

	body, _ := json.Marshal(AddItemRequestDTO{ItemID: "cake1", BakeryID: "B1", Quantity: 1})

	recorder := httptest.NewRecorder()
	handler.AddItem(recorder, authedRequest("POST", "/items", body))

	if recorder.Code != http.StatusCreated {
		t.Errorf("Expected status code %d, got %d", http.StatusCreated, recorder.Code)
	}

	var response CartResponseDTO
	json.NewDecoder(recorder.Body).Decode(&response)
	if response.Warning == "" {
		t.Error("Expected a sync warning on the response")
	}
}

func TestAddItem_InvalidBody(t *testing.T) {
	handler := NewCartHandler(&serviceMock{}, &coordinatorMock{}, 5*time.Second)

	recorder := httptest.NewRecorder()
	handler.AddItem(recorder, authedRequest("POST", "/items", []byte("{bad")))

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, recorder.Code)
	}
}

func TestUpdateQuantity_ItemNotFound(t *testing.T) {
	handler := NewCartHandler(&serviceMock{updateErr: domain.ErrItemNotFound}, &coordinatorMock{}, 5*time.Second)

	body, _ := json.Marshal(UpdateQuantityRequestDTO{Quantity: 3})
	request := authedRequest("PUT", "/items/nope", body)
	request = withURLParam(request, "item_id", "nope")

	recorder := httptest.NewRecorder()
	handler.UpdateQuantity(recorder, request)

	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected status code %d, got %d", http.StatusNotFound, recorder.Code)
	}
}

func TestRemoveItem_Success(t *testing.T) {
	handler := NewCartHandler(&serviceMock{cart: sampleCart()}, &coordinatorMock{}, 5*time.Second)

	request := authedRequest("DELETE", "/items/cake1", nil)
	request = withURLParam(request, "item_id", "cake1")

	recorder := httptest.NewRecorder()
	handler.RemoveItem(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
}

func TestChangeBakery_Conflict(t *testing.T) {
	handler := NewCartHandler(&serviceMock{changeErr: domain.ErrBakeryConflict}, &coordinatorMock{}, 5*time.Second)

	body, _ := json.Marshal(ChangeBakeryRequestDTO{BakeryID: "B2"})

	recorder := httptest.NewRecorder()
	handler.ChangeBakery(recorder, authedRequest("POST", "/bakery", body))

	if recorder.Code != http.StatusConflict {
		t.Errorf("Expected status code %d, got %d", http.StatusConflict, recorder.Code)
	}
}

func TestConfirmSwitch_NothingPending(t *testing.T) {
	handler := NewCartHandler(&serviceMock{}, &coordinatorMock{confirmErr: switchover.ErrNoPendingDecision}, 5*time.Second)

	recorder := httptest.NewRecorder()
	handler.ConfirmSwitch(recorder, authedRequest("POST", "/switch/confirm", nil))

	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected status code %d, got %d", http.StatusNotFound, recorder.Code)
	}
}

func TestCancelSwitch_Success(t *testing.T) {
	coord := &coordinatorMock{hadPending: true}
	handler := NewCartHandler(&serviceMock{cart: sampleCart()}, coord, 5*time.Second)

	recorder := httptest.NewRecorder()
	handler.CancelSwitch(recorder, authedRequest("POST", "/switch/cancel", nil))

	if recorder.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
}

func TestGetCart_FailureLogsRequestID(t *testing.T) {
	var logged bytes.Buffer
	log.SetOutput(&logged)
	defer log.SetOutput(os.Stderr)

	handler := NewCartHandler(&serviceMock{getErr: errors.New("mongo down")}, &coordinatorMock{}, 5*time.Second)

	recorder := httptest.NewRecorder()
	handler.GetCart(recorder, authedRequest("GET", "/", nil))

	if recorder.Code != http.StatusInternalServerError {
		t.Errorf("Expected status code %d, got %d", http.StatusInternalServerError, recorder.Code)
	}
	if !strings.Contains(logged.String(), "test-request-123") {
		t.Errorf("Expected the log line to carry the request id, got %q", logged.String())
	}
}

func TestRespondJSON_EncodeFailureKeepsResponseIntact(t *testing.T) {
	var logged bytes.Buffer
	log.SetOutput(&logged)
	defer log.SetOutput(os.Stderr)

	recorder := httptest.NewRecorder()
	respondJSON(recorder, http.StatusCreated, map[string]interface{}{"ch": make(chan int)})

	if recorder.Code != http.StatusCreated {
		t.Errorf("Expected status code %d, got %d", http.StatusCreated, recorder.Code)
	}
	// The failure goes to the log; nothing gets appended to the body.
	if body := recorder.Body.String(); strings.Contains(body, "failed to encode") {
		t.Errorf("Expected no error text in the body, got %q", body)
	}
	if !strings.Contains(logged.String(), "failed to encode response") {
		t.Errorf("Expected the encode failure to be logged, got %q", logged.String())
	}
}

func TestSyncCart_WarningOnFailure(t *testing.T) {
	svc := &serviceMock{syncErr: fmt.Errorf("%w: gateway timeout", remote.ErrSyncFailed)}
	handler := NewCartHandler(svc, &coordinatorMock{}, 5*time.Second)

	recorder := httptest.NewRecorder()
	handler.SyncCart(recorder, authedRequest("POST", "/sync", nil))

	if recorder.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}

	var response CartResponseDTO
	json.NewDecoder(recorder.Body).Decode(&response)
	if response.Warning == "" {
		t.Error("Expected a sync warning on the response")
	}
}
