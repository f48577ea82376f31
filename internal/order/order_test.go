package order

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"teestyle/internal/cart"
	"teestyle/internal/catalog"
	"teestyle/internal/models"
	"teestyle/internal/store"
)

type fixture struct {
	svc      *Service
	carts    *cart.Service
	catalog  *catalog.Service
	orders   *store.Memory[models.Order]
	users    *store.Memory[models.User]
	admin    models.User
	customer models.User
	stranger models.User
	tee      models.Product
	hat      models.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	discard := log.New(io.Discard, "", 0)

	users := store.NewMemory[models.User]()
	orders := store.NewMemory[models.Order]()
	products := store.NewMemory[models.Product]()

	catalogSvc := catalog.NewService(products, discard, discard)
	cartSvc := cart.NewService(store.NewMemory[models.Cart](), products, discard)
	svc := NewService(orders, users, cartSvc, catalogSvc, discard, discard)

	now := time.Now()
	admin, err := users.Insert(ctx, models.User{
		Name: "Admin", Email: "admin@teestyle.test", IsAdmin: true,
		CreatedAt: now, UpdatedAt: now, Version: 1,
	})
	require.NoError(t, err)
	customer, err := users.Insert(ctx, models.User{
		Name: "Peter", Email: "peter@teestyle.test",
		CreatedAt: now, UpdatedAt: now, Version: 1,
	})
	require.NoError(t, err)
	stranger, err := users.Insert(ctx, models.User{
		Name: "Eddie", Email: "eddie@teestyle.test",
		CreatedAt: now, UpdatedAt: now, Version: 1,
	})
	require.NoError(t, err)

	tee, err := catalogSvc.Create(ctx, models.Product{
		Name: "Spider-Verse Tee", Price: 10, Category: models.CategoryMarvel, Stock: 5,
	})
	require.NoError(t, err)
	hat, err := catalogSvc.Create(ctx, models.Product{
		Name: "Retro Arcade Cap", Price: 5, Category: models.CategoryGaming, Stock: 3,
	})
	require.NoError(t, err)

	return &fixture{
		svc:      svc,
		carts:    cartSvc,
		catalog:  catalogSvc,
		orders:   orders,
		users:    users,
		admin:    admin,
		customer: customer,
		stranger: stranger,
		tee:      tee,
		hat:      hat,
	}
}

func (f *fixture) fillCart(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.carts.AddItem(ctx, f.customer.ID.Hex(), f.tee.ID.Hex(), 2, "M", "red")
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, f.customer.ID.Hex(), f.hat.ID.Hex(), 1, "", "navy")
	require.NoError(t, err)
}

func (f *fixture) placeOrder(t *testing.T) models.Order {
	t.Helper()
	f.fillCart(t)
	o, err := f.svc.Create(context.Background(), f.customer.ID.Hex(), CreateParams{
		ShippingAddress: models.Address{Street: "20 Ingram St", City: "Queens", PostalCode: "11375", Country: "US"},
		PaymentMethod:   models.PaymentStripe,
	})
	require.NoError(t, err)
	return o
}

func TestCreateEmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.customer.ID.Hex(), CreateParams{PaymentMethod: models.PaymentStripe})
	assert.ErrorIs(t, err, models.ErrEmptyCart)

	placed, err := f.orders.Find(ctx, bson.M{})
	require.NoError(t, err)
	assert.Empty(t, placed)
}

func TestCreateUnknownPaymentMethod(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	_, err := f.svc.Create(context.Background(), f.customer.ID.Hex(), CreateParams{PaymentMethod: "barter"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCreatePricing(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)

	// 2 x $10 + 1 x $5 = $25; 15% tax = $3.75; flat shipping $10.
	assert.InDelta(t, 25.0, o.ItemsPrice, 0.001)
	assert.InDelta(t, 3.75, o.TaxPrice, 0.001)
	assert.InDelta(t, 10.0, o.ShippingPrice, 0.001)
	assert.InDelta(t, 38.75, o.TotalPrice, 0.001)

	assert.Equal(t, models.StatusAwaitingApproval, o.Status)
	require.Len(t, o.StatusHistory, 1)
	assert.Equal(t, models.StatusAwaitingApproval, o.StatusHistory[0].Status)
	assert.False(t, o.IsPaid)
	assert.False(t, o.IsApproved)
}

func TestCreateFreeShippingOverThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	big, err := f.catalog.Create(ctx, models.Product{
		Name: "Collector Box Set", Price: 60, Category: models.CategoryClassic, Stock: 5,
	})
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, f.customer.ID.Hex(), big.ID.Hex(), 2, "", "")
	require.NoError(t, err)

	o, err := f.svc.Create(ctx, f.customer.ID.Hex(), CreateParams{PaymentMethod: models.PaymentPaypal})
	require.NoError(t, err)
	assert.InDelta(t, 120.0, o.ItemsPrice, 0.001)
	assert.Zero(t, o.ShippingPrice)
	assert.InDelta(t, 138.0, o.TotalPrice, 0.001)
}

func TestCreateDecrementsStockAndClearsCart(t *testing.T) {
	f := newFixture(t)
	f.placeOrder(t)
	ctx := context.Background()

	tee, err := f.catalog.Get(ctx, f.tee.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 3, tee.Stock)

	hat, err := f.catalog.Get(ctx, f.hat.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 2, hat.Stock)

	c, err := f.carts.GetOrCreate(ctx, f.customer.ID.Hex())
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.Zero(t, c.TotalPrice)
}

func TestCreateCompensatesFailedDecrement(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	ctx := context.Background()

	// The hat's stock drops below the cart quantity between carting and
	// checkout. The tee decrement lands first and must be rolled back.
	_, err := f.catalog.AdjustStock(ctx, f.hat.ID.Hex(), -3)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.customer.ID.Hex(), CreateParams{PaymentMethod: models.PaymentStripe})
	assert.ErrorIs(t, err, models.ErrInsufficientStock)

	tee, err := f.catalog.Get(ctx, f.tee.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 5, tee.Stock)

	placed, err := f.orders.Find(ctx, bson.M{})
	require.NoError(t, err)
	assert.Empty(t, placed)

	// The cart survives a failed checkout.
	c, err := f.carts.GetOrCreate(ctx, f.customer.ID.Hex())
	require.NoError(t, err)
	assert.Len(t, c.Items, 2)
}

func TestCreateDiscount(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	o, err := f.svc.Create(context.Background(), f.customer.ID.Hex(), CreateParams{
		PaymentMethod: models.PaymentStripe,
		Discount:      &models.Discount{Code: "WEBHEAD5", Kind: "coupon", Amount: 5},
	})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, o.DiscountAmount, 0.001)
	assert.InDelta(t, 33.75, o.TotalPrice, 0.001)
}

func TestCreateDiscountOutOfRange(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	_, err := f.svc.Create(context.Background(), f.customer.ID.Hex(), CreateParams{
		PaymentMethod: models.PaymentStripe,
		Discount:      &models.Discount{Code: "TOOBIG", Kind: "coupon", Amount: 26},
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSnapshotSurvivesProductEdit(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	name := "Spider-Verse Tee (Reprint)"
	price := 99.0
	_, err := f.catalog.Update(ctx, f.tee.ID.Hex(), catalog.ProductUpdate{Name: &name, Price: &price})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, f.customer.ID.Hex(), o.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "Spider-Verse Tee", got.Items[0].Name)
	assert.InDelta(t, 10.0, got.Items[0].Price, 0.001)
	assert.InDelta(t, 38.75, got.TotalPrice, 0.001)
}

func TestGetAccessControl(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, f.customer.ID.Hex(), o.ID.Hex())
	assert.NoError(t, err)

	_, err = f.svc.Get(ctx, f.admin.ID.Hex(), o.ID.Hex())
	assert.NoError(t, err)

	_, err = f.svc.Get(ctx, f.stranger.ID.Hex(), o.ID.Hex())
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestListMineAndListAll(t *testing.T) {
	f := newFixture(t)
	f.placeOrder(t)
	ctx := context.Background()

	mine, err := f.svc.ListMine(ctx, f.customer.ID.Hex())
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	none, err := f.svc.ListMine(ctx, f.stranger.ID.Hex())
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := f.svc.ListAll(ctx, f.admin.ID.Hex())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.svc.ListAll(ctx, f.customer.ID.Hex())
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestApprove(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	got, err := f.svc.Approve(ctx, f.admin.ID.Hex(), o.ID.Hex(), true, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.True(t, got.IsApproved)
	require.NotNil(t, got.ApprovedAt)
	assert.Equal(t, f.admin.ID, got.ApprovedBy)
	assert.Len(t, got.StatusHistory, 2)
}

func TestApprovePaidOrderGoesToProcessing(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	_, err := f.svc.MarkPaid(ctx, "", o.ID.Hex(), models.PaymentResult{ID: "pi_1", Status: "succeeded"})
	require.NoError(t, err)

	got, err := f.svc.Approve(ctx, f.admin.ID.Hex(), o.ID.Hex(), true, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)
	assert.True(t, got.IsApproved)
}

func TestRejectIsTerminal(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	got, err := f.svc.Approve(ctx, f.admin.ID.Hex(), o.ID.Hex(), false, "out of area")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, got.Status)
	assert.False(t, got.IsApproved)

	_, err = f.svc.Approve(ctx, f.admin.ID.Hex(), o.ID.Hex(), true, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestApproveRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)

	_, err := f.svc.Approve(context.Background(), f.customer.ID.Hex(), o.ID.Hex(), true, "")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestMarkPaid(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	result := models.PaymentResult{ID: "pi_1", Status: "succeeded", EmailAddress: "peter@teestyle.test"}
	got, err := f.svc.MarkPaid(ctx, f.customer.ID.Hex(), o.ID.Hex(), result)
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
	require.NotNil(t, got.PaidAt)
	require.NotNil(t, got.PaymentResult)
	assert.Equal(t, "pi_1", got.PaymentResult.ID)
	assert.Equal(t, models.StatusProcessing, got.Status)
	assert.Len(t, got.StatusHistory, 2)
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	first, err := f.svc.MarkPaid(ctx, "", o.ID.Hex(), models.PaymentResult{ID: "pi_1", Status: "succeeded"})
	require.NoError(t, err)

	// A duplicate gateway notification must not overwrite the first
	// capture or grow the history.
	second, err := f.svc.MarkPaid(ctx, "", o.ID.Hex(), models.PaymentResult{ID: "pi_2", Status: "succeeded"})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", second.PaymentResult.ID)
	assert.Equal(t, first.Version, second.Version)
	assert.Len(t, second.StatusHistory, 2)
}

func TestMarkPaidTerminalOrder(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, f.admin.ID.Hex(), o.ID.Hex(), "customer asked")
	require.NoError(t, err)

	_, err = f.svc.MarkPaid(ctx, "", o.ID.Hex(), models.PaymentResult{ID: "pi_late", Status: "succeeded"})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestUpdateStatusFollowsTable(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	_, err := f.svc.MarkPaid(ctx, "", o.ID.Hex(), models.PaymentResult{ID: "pi_1", Status: "succeeded"})
	require.NoError(t, err)

	got, err := f.svc.UpdateStatus(ctx, f.admin.ID.Hex(), o.ID.Hex(), models.StatusPacked, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPacked, got.Status)

	// packed cannot jump back to processing.
	_, err = f.svc.UpdateStatus(ctx, f.admin.ID.Hex(), o.ID.Hex(), models.StatusProcessing, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(ctx, f.admin.ID.Hex(), o.ID.Hex(), "lost_in_warehouse", "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestUpdateStatusDelivered(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	_, err := f.svc.MarkPaid(ctx, "", o.ID.Hex(), models.PaymentResult{ID: "pi_1", Status: "succeeded"})
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, f.admin.ID.Hex(), o.ID.Hex(), models.StatusShipped, "")
	require.NoError(t, err)

	got, err := f.svc.UpdateStatus(ctx, f.admin.ID.Hex(), o.ID.Hex(), models.StatusDelivered, "left at door")
	require.NoError(t, err)
	assert.True(t, got.IsDelivered)
	require.NotNil(t, got.DeliveredAt)

	// placed, processing, shipped, delivered: one entry per transition.
	assert.Len(t, got.StatusHistory, 4)

	_, err = f.svc.Cancel(ctx, f.admin.ID.Hex(), o.ID.Hex(), "too late")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestCancelRestoresStock(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	got, err := f.svc.Cancel(ctx, f.admin.ID.Hex(), o.ID.Hex(), "fraud check failed")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, "fraud check failed", got.CancellationReason)

	tee, err := f.catalog.Get(ctx, f.tee.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 5, tee.Stock)

	hat, err := f.catalog.Get(ctx, f.hat.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 3, hat.Stock)

	// Cancelling twice must not restore twice.
	_, err = f.svc.Cancel(ctx, f.admin.ID.Hex(), o.ID.Hex(), "again")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	tee, err = f.catalog.Get(ctx, f.tee.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 5, tee.Stock)
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, f.admin.ID.Hex(), o.ID.Hex(), "customer asked")
	require.NoError(t, err)

	got, err := f.svc.Refund(ctx, f.admin.ID.Hex(), o.ID.Hex(), 0, "goodwill")
	require.NoError(t, err)
	assert.Equal(t, models.RefundProcessed, got.RefundStatus)
	require.Len(t, got.Refunds, 1)
	assert.InDelta(t, o.TotalPrice, got.Refunds[0].Amount, 0.001)

	// The refund marker leaves the status alone.
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestRefundEligibility(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	_, err := f.svc.Refund(ctx, f.admin.ID.Hex(), o.ID.Hex(), 0, "too early")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestRefundAmountCapped(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, f.admin.ID.Hex(), o.ID.Hex(), "")
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, f.admin.ID.Hex(), o.ID.Hex(), o.TotalPrice+1, "")
	assert.ErrorIs(t, err, models.ErrValidation)

	got, err := f.svc.Refund(ctx, f.admin.ID.Hex(), o.ID.Hex(), 10, "partial")
	require.NoError(t, err)
	require.Len(t, got.Refunds, 1)
	assert.InDelta(t, 10.0, got.Refunds[0].Amount, 0.001)
}

func TestRefundLegacyCapitalizedStatus(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	// Documents written by older tooling carry capitalized statuses;
	// eligibility is checked case-insensitively.
	_, err := f.orders.Update(ctx, o.ID.Hex(), bson.M{"$set": bson.M{"status": "Shipped"}})
	require.NoError(t, err)

	got, err := f.svc.Refund(ctx, f.admin.ID.Hex(), o.ID.Hex(), 0, "damaged in transit")
	require.NoError(t, err)
	assert.Equal(t, models.RefundProcessed, got.RefundStatus)
}

func TestAddShipment(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	_, err := f.svc.MarkPaid(ctx, "", o.ID.Hex(), models.PaymentResult{ID: "pi_1", Status: "succeeded"})
	require.NoError(t, err)

	got, err := f.svc.AddShipment(ctx, f.admin.ID.Hex(), o.ID.Hex(), models.Tracking{
		Carrier:        "UPS",
		TrackingNumber: "1Z999AA10123456784",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, got.Status)
	require.NotNil(t, got.Tracking)
	assert.Equal(t, "UPS", got.Tracking.Carrier)
}

func TestAddShipmentValidation(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	_, err := f.svc.AddShipment(ctx, f.admin.ID.Hex(), o.ID.Hex(), models.Tracking{Carrier: "UPS"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.svc.AddShipment(ctx, f.admin.ID.Hex(), o.ID.Hex(), models.Tracking{TrackingNumber: "1Z"})
	assert.ErrorIs(t, err, models.ErrValidation)

	// An unpaid, unapproved order is not shippable.
	_, err = f.svc.AddShipment(ctx, f.admin.ID.Hex(), o.ID.Hex(), models.Tracking{
		Carrier: "UPS", TrackingNumber: "1Z999AA10123456784",
	})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestAddNote(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t)
	ctx := context.Background()

	got, err := f.svc.AddNote(ctx, f.admin.ID.Hex(), o.ID.Hex(), "called the customer")
	require.NoError(t, err)
	require.Len(t, got.Notes, 1)
	assert.Equal(t, "called the customer", got.Notes[0].Content)
	assert.Equal(t, f.admin.ID, got.Notes[0].AuthorID)

	// Notes never touch the status or its history.
	assert.Equal(t, models.StatusAwaitingApproval, got.Status)
	assert.Len(t, got.StatusHistory, 1)

	_, err = f.svc.AddNote(ctx, f.admin.ID.Hex(), o.ID.Hex(), "")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.svc.AddNote(ctx, f.customer.ID.Hex(), o.ID.Hex(), "sneaky")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
