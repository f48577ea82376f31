package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"teestyle/internal/catalog"
	"teestyle/internal/models"
	"teestyle/internal/order"
)

// --- BASE HELPERS ---

type apiError struct {
	Error string `json:"error"`
}

func (app *application) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			app.errorLog.Println(err)
		}
	}
}

func (app *application) readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		app.writeJSON(w, http.StatusBadRequest, apiError{Error: "malformed request body"})
		return false
	}
	return true
}

func (app *application) serverError(w http.ResponseWriter, err error) {
	app.errorLog.Println(err)
	app.writeJSON(w, http.StatusInternalServerError, apiError{Error: http.StatusText(http.StatusInternalServerError)})
}

func (app *application) clientError(w http.ResponseWriter, status int) {
	app.writeJSON(w, status, apiError{Error: http.StatusText(status)})
}

// errorResponse maps the service error taxonomy to transport signaling.
func (app *application) errorResponse(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		app.writeJSON(w, http.StatusNotFound, apiError{Error: err.Error()})
	case errors.Is(err, models.ErrUnauthorized):
		app.writeJSON(w, http.StatusForbidden, apiError{Error: err.Error()})
	case errors.Is(err, models.ErrInvalidTransition):
		app.writeJSON(w, http.StatusConflict, apiError{Error: err.Error()})
	case errors.Is(err, models.ErrConflict):
		app.writeJSON(w, http.StatusConflict, apiError{Error: err.Error()})
	case errors.Is(err, models.ErrValidation):
		app.writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: err.Error()})
	case errors.Is(err, models.ErrStoreUnavailable):
		app.writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "storage backend unavailable"})
	default:
		app.serverError(w, err)
	}
}

// --- AUTH HANDLERS ---

func (app *application) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !app.readJSON(w, r, &req) {
		return
	}

	user, err := app.users.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusCreated, user)
}

func (app *application) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !app.readJSON(w, r, &req) {
		return
	}

	user, err := app.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		app.clientError(w, http.StatusUnauthorized)
		return
	}

	app.session.Put(r.Context(), "authenticatedUserID", user.ID.Hex())
	app.session.Put(r.Context(), "isAdmin", user.IsAdmin)

	token, err := app.tokens.IssueToken(user, 12*time.Hour)
	if err != nil {
		app.serverError(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, struct {
		User  models.User `json:"user"`
		Token string      `json:"token"`
	}{User: user, Token: token})
}

func (app *application) logout(w http.ResponseWriter, r *http.Request) {
	app.session.Remove(r.Context(), "authenticatedUserID")
	if err := app.session.Destroy(r.Context()); err != nil {
		app.serverError(w, err)
		return
	}
	app.writeJSON(w, http.StatusNoContent, nil)
}

// --- PRODUCT & CATALOG HANDLERS ---

func (app *application) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := catalog.ListOptions{
		Search:       q.Get("search"),
		Category:     models.Category(q.Get("category")),
		FeaturedOnly: q.Get("featured") == "true",
	}
	products, err := app.catalog.List(r.Context(), opts)
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, products)
}

func (app *application) showProduct(w http.ResponseWriter, r *http.Request) {
	p, err := app.catalog.Get(r.Context(), r.URL.Query().Get(":id"))
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, p)
}

func (app *application) createProduct(w http.ResponseWriter, r *http.Request) {
	var p models.Product
	if !app.readJSON(w, r, &p) {
		return
	}
	created, err := app.catalog.Create(r.Context(), p)
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusCreated, created)
}

func (app *application) updateProduct(w http.ResponseWriter, r *http.Request) {
	var u catalog.ProductUpdate
	if !app.readJSON(w, r, &u) {
		return
	}
	updated, err := app.catalog.Update(r.Context(), r.URL.Query().Get(":id"), u)
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, updated)
}

func (app *application) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := app.catalog.Delete(r.Context(), r.URL.Query().Get(":id")); err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusNoContent, nil)
}

// --- CART HANDLERS ---

func (app *application) showCart(w http.ResponseWriter, r *http.Request) {
	c, err := app.carts.GetOrCreate(r.Context(), identityFrom(r).UserID)
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, c)
}

func (app *application) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
		Size      string `json:"size"`
		Color     string `json:"color"`
	}
	if !app.readJSON(w, r, &req) {
		return
	}

	c, err := app.carts.AddItem(r.Context(), identityFrom(r).UserID, req.ProductID, req.Quantity, req.Size, req.Color)
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, c)
}

func (app *application) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !app.readJSON(w, r, &req) {
		return
	}

	c, err := app.carts.UpdateItemQuantity(r.Context(), identityFrom(r).UserID, r.URL.Query().Get(":id"), req.Quantity)
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, c)
}

func (app *application) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := app.carts.RemoveItem(r.Context(), identityFrom(r).UserID, r.URL.Query().Get(":id"))
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, c)
}

// --- ORDER HANDLERS ---

func (app *application) createOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShippingAddress models.Address       `json:"shippingAddress"`
		PaymentMethod   models.PaymentMethod `json:"paymentMethod"`
		Discount        *models.Discount     `json:"discount,omitempty"`
	}
	if !app.readJSON(w, r, &req) {
		return
	}

	o, err := app.orders.Create(r.Context(), identityFrom(r).UserID, order.CreateParams{
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Discount:        req.Discount,
	})
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusCreated, o)
}

func (app *application) listMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := app.orders.ListMine(r.Context(), identityFrom(r).UserID)
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, orders)
}

func (app *application) showOrder(w http.ResponseWriter, r *http.Request) {
	o, err := app.orders.Get(r.Context(), identityFrom(r).UserID, r.URL.Query().Get(":id"))
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, o)
}

// payOrder starts a Stripe payment for stripe orders and returns the
// client secret; for other methods it records the supplied gateway
// result directly.
func (app *application) payOrder(w http.ResponseWriter, r *http.Request) {
	actorID := identityFrom(r).UserID
	orderID := r.URL.Query().Get(":id")

	o, err := app.orders.Get(r.Context(), actorID, orderID)
	if err != nil {
		app.errorResponse(w, err)
		return
	}

	if o.PaymentMethod == models.PaymentStripe {
		clientSecret, err := app.payments.CreateIntent(o)
		if err != nil {
			app.serverError(w, err)
			return
		}
		app.writeJSON(w, http.StatusOK, struct {
			ClientSecret string `json:"clientSecret"`
		}{ClientSecret: clientSecret})
		return
	}

	var result models.PaymentResult
	if !app.readJSON(w, r, &result) {
		return
	}
	updated, err := app.orders.MarkPaid(r.Context(), actorID, orderID, result)
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, updated)
}

func (app *application) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 65536))
	if err != nil {
		app.clientError(w, http.StatusBadRequest)
		return
	}

	orderID, result, ok, err := app.payments.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		app.clientError(w, http.StatusBadRequest)
		return
	}
	if ok {
		if _, err := app.orders.MarkPaid(r.Context(), "", orderID, result); err != nil {
			app.errorLog.Printf("webhook: marking order %s paid: %v", orderID, err)
		}
	}
	app.writeJSON(w, http.StatusOK, nil)
}

// --- ADMIN ORDER HANDLERS ---

func (app *application) listAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := app.orders.ListAll(r.Context(), identityFrom(r).UserID)
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, orders)
}

func (app *application) approveOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Approved bool   `json:"approved"`
		Notes    string `json:"notes"`
	}
	if !app.readJSON(w, r, &req) {
		return
	}

	o, err := app.orders.Approve(r.Context(), identityFrom(r).UserID, r.URL.Query().Get(":id"), req.Approved, req.Notes)
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, o)
}

func (app *application) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.OrderStatus `json:"status"`
		Notes  string             `json:"notes"`
	}
	if !app.readJSON(w, r, &req) {
		return
	}

	o, err := app.orders.UpdateStatus(r.Context(), identityFrom(r).UserID, r.URL.Query().Get(":id"), req.Status, req.Notes)
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, o)
}

func (app *application) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !app.readJSON(w, r, &req) {
		return
	}

	o, err := app.orders.Cancel(r.Context(), identityFrom(r).UserID, r.URL.Query().Get(":id"), req.Reason)
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, o)
}

func (app *application) refundOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount float64 `json:"amount"`
		Reason string  `json:"reason"`
	}
	if !app.readJSON(w, r, &req) {
		return
	}

	o, err := app.orders.Refund(r.Context(), identityFrom(r).UserID, r.URL.Query().Get(":id"), req.Amount, req.Reason)
	if err != nil {
		app.errorResponse(w, err)
		return
	}

	// Push the refund back through the gateway when the order was paid
	// through Stripe. A gateway failure is logged, not unwound: the
	// recorded refund is the source of truth for support.
	if o.PaymentMethod == models.PaymentStripe && o.PaymentResult != nil {
		amount := req.Amount
		if amount <= 0 {
			amount = o.TotalPrice
		}
		if err := app.payments.Refund(o.PaymentResult.ID, amount); err != nil {
			app.errorLog.Printf("stripe refund for order %s: %v", o.ID.Hex(), err)
		}
	}
	app.writeJSON(w, http.StatusOK, o)
}

func (app *application) addShipment(w http.ResponseWriter, r *http.Request) {
	var req models.Tracking
	if !app.readJSON(w, r, &req) {
		return
	}

	o, err := app.orders.AddShipment(r.Context(), identityFrom(r).UserID, r.URL.Query().Get(":id"), req)
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, o)
}

func (app *application) addOrderNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if !app.readJSON(w, r, &req) {
		return
	}

	o, err := app.orders.AddNote(r.Context(), identityFrom(r).UserID, r.URL.Query().Get(":id"), req.Content)
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, o)
}

// --- PROFILE HANDLERS ---

func (app *application) addAddress(w http.ResponseWriter, r *http.Request) {
	var addr models.Address
	if !app.readJSON(w, r, &addr) {
		return
	}

	u, err := app.users.AddAddress(r.Context(), identityFrom(r).UserID, addr)
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, u)
}

func (app *application) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if !app.readJSON(w, r, &req) {
		return
	}

	u, err := app.users.UpdateProfile(r.Context(), identityFrom(r).UserID, req.Name, req.Email)
	if err != nil {
		app.errorResponse(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, u)
}
