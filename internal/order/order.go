// Package order implements the order state machine: creation from a
// cart, payment, approval, shipment, cancellation and refunds, with an
// append-only status history as the audit trail.
package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"teestyle/internal/cart"
	"teestyle/internal/catalog"
	"teestyle/internal/models"
	"teestyle/internal/store"
)

const (
	taxRate          = 0.15
	freeShippingOver = 100.0
	flatShippingFee  = 10.0
	casRetries       = 3
)

type Service struct {
	orders   store.Collection[models.Order]
	users    store.Collection[models.User]
	carts    *cart.Service
	catalog  *catalog.Service
	infoLog  *log.Logger
	errorLog *log.Logger
}

func NewService(
	orders store.Collection[models.Order],
	users store.Collection[models.User],
	carts *cart.Service,
	cat *catalog.Service,
	infoLog, errorLog *log.Logger,
) *Service {
	return &Service{
		orders:   orders,
		users:    users,
		carts:    carts,
		catalog:  cat,
		infoLog:  infoLog,
		errorLog: errorLog,
	}
}

// CreateParams carries the checkout inputs alongside an optional
// coupon or referral discount resolved by the caller.
type CreateParams struct {
	ShippingAddress models.Address
	PaymentMethod   models.PaymentMethod
	Discount        *models.Discount
}

// Create turns the user's cart into an order: prices are computed once,
// cart lines are snapshotted, stock is decremented per item and the
// cart is cleared last. The three writes are not one transaction; a
// failed stock decrement is compensated by restoring the decrements
// that already landed before the error is returned.
func (s *Service) Create(ctx context.Context, userID string, params CreateParams) (models.Order, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.Order{}, models.ErrNotFound
	}
	if !knownPaymentMethod(params.PaymentMethod) {
		return models.Order{}, &models.ValidationError{
			Field:  "paymentMethod",
			Reason: fmt.Sprintf("unknown payment method %q", params.PaymentMethod),
		}
	}

	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return models.Order{}, err
	}
	if len(c.Items) == 0 {
		return models.Order{}, models.ErrEmptyCart
	}

	itemsPrice := c.TotalPrice
	taxPrice := round2(itemsPrice * taxRate)
	shippingPrice := flatShippingFee
	if itemsPrice > freeShippingOver {
		shippingPrice = 0
	}
	var discountAmount float64
	if params.Discount != nil {
		if params.Discount.Amount < 0 || params.Discount.Amount > itemsPrice {
			return models.Order{}, &models.ValidationError{Field: "discount", Reason: "amount out of range"}
		}
		discountAmount = params.Discount.Amount
	}
	totalPrice := round2(itemsPrice + taxPrice + shippingPrice - discountAmount)

	items := make([]models.OrderItem, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, models.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Image:     it.Image,
			Price:     it.Price,
			Quantity:  it.Quantity,
			Size:      it.Size,
			Color:     it.Color,
		})
	}

	if err := s.decrementStock(ctx, items); err != nil {
		return models.Order{}, err
	}

	now := time.Now()
	order := models.Order{
		ID:              primitive.NewObjectID(),
		UserID:          uid,
		Items:           items,
		ShippingAddress: params.ShippingAddress,
		PaymentMethod:   params.PaymentMethod,
		ItemsPrice:      itemsPrice,
		TaxPrice:        taxPrice,
		ShippingPrice:   shippingPrice,
		DiscountAmount:  discountAmount,
		TotalPrice:      totalPrice,
		Discount:        params.Discount,
		Status:          models.StatusAwaitingApproval,
		StatusHistory: []models.StatusEvent{
			{Status: models.StatusAwaitingApproval, Timestamp: now, Note: "order placed"},
		},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	created, err := s.orders.Insert(ctx, order)
	if err != nil {
		s.restoreStock(ctx, items)
		return models.Order{}, err
	}

	if _, err := s.carts.Clear(ctx, userID); err != nil {
		// The order stands; an uncleared cart is an annoyance, not a loss.
		s.errorLog.Printf("order %s: clearing cart for user %s: %v", created.ID.Hex(), userID, err)
	}

	s.infoLog.Printf("order %s created for user %s, total %.2f", created.ID.Hex(), userID, totalPrice)
	return created, nil
}

// Get returns an order to its owner or to an admin.
func (s *Service) Get(ctx context.Context, actorID, orderID string) (models.Order, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if o.UserID.Hex() != actorID {
		if _, err := s.requireAdmin(ctx, actorID); err != nil {
			return models.Order{}, err
		}
	}
	return o, nil
}

// ListMine returns the calling user's orders.
func (s *Service) ListMine(ctx context.Context, userID string) ([]models.Order, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, models.ErrNotFound
	}
	return s.orders.Find(ctx, bson.M{"userId": uid})
}

// ListAll returns every order; admin only.
func (s *Service) ListAll(ctx context.Context, actorID string) ([]models.Order, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	return s.orders.Find(ctx, bson.M{})
}

// Approve records the approval decision. Rejection is terminal; an
// approved order moves to processing when already paid, otherwise to
// approved.
func (s *Service) Approve(ctx context.Context, actorID, orderID string, approved bool, note string) (models.Order, error) {
	admin, err := s.requireAdmin(ctx, actorID)
	if err != nil {
		return models.Order{}, err
	}

	return s.mutate(ctx, orderID, func(o models.Order) (bson.M, error) {
		// A paid order sits in processing while still awaiting the
		// decision, so that state is approvable too.
		pendingDecision := o.Status == models.StatusAwaitingApproval ||
			(o.Status == models.StatusProcessing && !o.IsApproved && o.ApprovedAt == nil)
		if !pendingDecision {
			return nil, &models.TransitionError{Current: o.Status, Attempted: "approve"}
		}

		now := time.Now()
		target := models.StatusRejected
		if approved {
			target = models.StatusApproved
			if o.IsPaid {
				target = models.StatusProcessing
			}
		}
		if note == "" {
			note = "order " + string(target)
		}
		return bson.M{
			"$set": bson.M{
				"isApproved": approved,
				"approvedAt": now,
				"approvedBy": admin.ID,
				"status":     target,
				"updatedAt":  now,
			},
			"$push": bson.M{"statusHistory": models.StatusEvent{Status: target, Timestamp: now, Note: note}},
			"$inc":  bson.M{"version": 1},
		}, nil
	})
}

// MarkPaid records a successful capture and advances the order to
// processing. actorID is empty when a verified gateway notification is
// the caller; otherwise it must be the owner or an admin. Repeated
// notifications for an already-paid order are a no-op.
func (s *Service) MarkPaid(ctx context.Context, actorID, orderID string, result models.PaymentResult) (models.Order, error) {
	if actorID != "" {
		if _, err := s.Get(ctx, actorID, orderID); err != nil {
			return models.Order{}, err
		}
	}

	return s.mutate(ctx, orderID, func(o models.Order) (bson.M, error) {
		if o.IsPaid {
			return nil, nil
		}

		now := time.Now()
		set := bson.M{
			"isPaid":        true,
			"paidAt":        now,
			"paymentResult": result,
			"updatedAt":     now,
		}
		patch := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
		if canTransition(o.Status, models.StatusProcessing) {
			set["status"] = models.StatusProcessing
			patch["$push"] = bson.M{"statusHistory": models.StatusEvent{
				Status: models.StatusProcessing, Timestamp: now, Note: "payment received",
			}}
		} else if len(transitions[o.Status]) == 0 {
			return nil, &models.TransitionError{Current: o.Status, Attempted: "pay"}
		}
		return patch, nil
	})
}

// UpdateStatus moves the order to an explicit status; admin only. The
// transition table is the gatekeeper, and delivery also flips the
// delivered flag.
func (s *Service) UpdateStatus(ctx context.Context, actorID, orderID string, status models.OrderStatus, note string) (models.Order, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return models.Order{}, err
	}
	if !knownStatus(status) {
		return models.Order{}, &models.ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("unknown status %q", status),
		}
	}

	return s.mutate(ctx, orderID, func(o models.Order) (bson.M, error) {
		if !canTransition(o.Status, status) {
			return nil, &models.TransitionError{Current: o.Status, Attempted: "move to " + string(status)}
		}

		now := time.Now()
		set := bson.M{"status": status, "updatedAt": now}
		if status == models.StatusDelivered {
			set["isDelivered"] = true
			set["deliveredAt"] = now
		}
		return bson.M{
			"$set":  set,
			"$push": bson.M{"statusHistory": models.StatusEvent{Status: status, Timestamp: now, Note: note}},
			"$inc":  bson.M{"version": 1},
		}, nil
	})
}

// Cancel terminates an undelivered order and restores the stock its
// creation decremented. Restoration is best effort and runs only after
// the status write lands, so a lost race never restores twice.
func (s *Service) Cancel(ctx context.Context, actorID, orderID, reason string) (models.Order, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return models.Order{}, err
	}

	updated, err := s.mutate(ctx, orderID, func(o models.Order) (bson.M, error) {
		if o.Status == models.StatusDelivered || o.Status == models.StatusCancelled {
			return nil, &models.TransitionError{Current: o.Status, Attempted: "cancel"}
		}

		now := time.Now()
		note := reason
		if note == "" {
			note = "order cancelled"
		}
		return bson.M{
			"$set": bson.M{
				"status":             models.StatusCancelled,
				"cancellationReason": reason,
				"updatedAt":          now,
			},
			"$push": bson.M{"statusHistory": models.StatusEvent{Status: models.StatusCancelled, Timestamp: now, Note: note}},
			"$inc":  bson.M{"version": 1},
		}, nil
	})
	if err != nil {
		return models.Order{}, err
	}

	s.restoreStock(ctx, updated.Items)
	return updated, nil
}

// Refund records a refund against an order that was delivered, shipped
// or cancelled. The refund marker is kept apart from the status so a
// cancelled order stays cancelled. The amount defaults to the full
// total when not given.
func (s *Service) Refund(ctx context.Context, actorID, orderID string, amount float64, reason string) (models.Order, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return models.Order{}, err
	}

	return s.mutate(ctx, orderID, func(o models.Order) (bson.M, error) {
		if !refundable(o.Status) {
			return nil, &models.TransitionError{Current: o.Status, Attempted: "refund"}
		}

		amt := amount
		if amt <= 0 {
			amt = o.TotalPrice
		}
		if amt > o.TotalPrice {
			return nil, &models.ValidationError{Field: "amount", Reason: "exceeds order total"}
		}

		now := time.Now()
		refund := models.Refund{
			ID:        primitive.NewObjectID().Hex(),
			Amount:    amt,
			Reason:    reason,
			CreatedAt: now,
		}
		return bson.M{
			"$set":  bson.M{"refundStatus": models.RefundProcessed, "updatedAt": now},
			"$push": bson.M{"refunds": refund},
			"$inc":  bson.M{"version": 1},
		}, nil
	})
}

// AddShipment attaches the tracking block and advances the order to
// shipped. Carrier and tracking number are mandatory.
func (s *Service) AddShipment(ctx context.Context, actorID, orderID string, tracking models.Tracking) (models.Order, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return models.Order{}, err
	}
	if tracking.TrackingNumber == "" {
		return models.Order{}, &models.ValidationError{Field: "trackingNumber", Reason: "required"}
	}
	if tracking.Carrier == "" {
		return models.Order{}, &models.ValidationError{Field: "carrier", Reason: "required"}
	}

	return s.mutate(ctx, orderID, func(o models.Order) (bson.M, error) {
		if !canTransition(o.Status, models.StatusShipped) {
			return nil, &models.TransitionError{Current: o.Status, Attempted: "ship"}
		}

		now := time.Now()
		note := fmt.Sprintf("shipped via %s, tracking %s", tracking.Carrier, tracking.TrackingNumber)
		return bson.M{
			"$set": bson.M{
				"tracking":  tracking,
				"status":    models.StatusShipped,
				"updatedAt": now,
			},
			"$push": bson.M{"statusHistory": models.StatusEvent{Status: models.StatusShipped, Timestamp: now, Note: note}},
			"$inc":  bson.M{"version": 1},
		}, nil
	})
}

// AddNote appends an admin note. Notes never change status.
func (s *Service) AddNote(ctx context.Context, actorID, orderID, content string) (models.Order, error) {
	admin, err := s.requireAdmin(ctx, actorID)
	if err != nil {
		return models.Order{}, err
	}
	if content == "" {
		return models.Order{}, &models.ValidationError{Field: "content", Reason: "required"}
	}

	return s.mutate(ctx, orderID, func(o models.Order) (bson.M, error) {
		now := time.Now()
		note := models.OrderNote{Content: content, AuthorID: admin.ID, CreatedAt: now}
		return bson.M{
			"$set":  bson.M{"updatedAt": now},
			"$push": bson.M{"adminNotes": note},
			"$inc":  bson.M{"version": 1},
		}, nil
	})
}

// mutate runs a read-check-write cycle guarded on the order version. A
// nil patch from fn means nothing to do; the current document comes
// back unchanged. Lost races retry with a fresh read so precondition
// checks always see the status they race against.
func (s *Service) mutate(ctx context.Context, orderID string, fn func(o models.Order) (bson.M, error)) (models.Order, error) {
	for i := 0; i < casRetries; i++ {
		o, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return models.Order{}, err
		}

		patch, err := fn(o)
		if err != nil {
			return models.Order{}, err
		}
		if patch == nil {
			return o, nil
		}

		updated, err := s.orders.UpdateWhere(ctx, orderID, bson.M{"version": o.Version}, patch)
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		return updated, err
	}
	return models.Order{}, models.ErrConflict
}

// requireAdmin re-resolves the actor from the user collection instead
// of trusting a caller-supplied flag.
func (s *Service) requireAdmin(ctx context.Context, actorID string) (models.User, error) {
	u, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.User{}, models.ErrUnauthorized
		}
		return models.User{}, err
	}
	if !u.IsAdmin {
		return models.User{}, models.ErrUnauthorized
	}
	return u, nil
}

func (s *Service) decrementStock(ctx context.Context, items []models.OrderItem) error {
	for i, it := range items {
		if _, err := s.catalog.AdjustStock(ctx, it.ProductID.Hex(), -it.Quantity); err != nil {
			s.errorLog.Printf("stock decrement failed for product %s: %v", it.ProductID.Hex(), err)
			s.restoreStock(ctx, items[:i])
			return err
		}
	}
	return nil
}

func (s *Service) restoreStock(ctx context.Context, items []models.OrderItem) {
	for _, it := range items {
		if _, err := s.catalog.AdjustStock(ctx, it.ProductID.Hex(), it.Quantity); err != nil {
			s.errorLog.Printf("stock restore failed for product %s: %v", it.ProductID.Hex(), err)
		}
	}
}

func refundable(status models.OrderStatus) bool {
	switch models.OrderStatus(strings.ToLower(string(status))) {
	case models.StatusDelivered, models.StatusShipped, models.StatusCancelled:
		return true
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func knownPaymentMethod(m models.PaymentMethod) bool {
	for _, known := range models.PaymentMethods {
		if m == known {
			return true
		}
	}
	return false
}
