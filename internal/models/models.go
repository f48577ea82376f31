package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Address struct {
	FullName   string `bson:"fullName,omitempty" json:"fullName,omitempty"`
	Street     string `bson:"street" json:"street"`
	City       string `bson:"city" json:"city"`
	State      string `bson:"state,omitempty" json:"state,omitempty"`
	PostalCode string `bson:"postalCode" json:"postalCode"`
	Country    string `bson:"country" json:"country"`
	IsDefault  bool   `bson:"isDefault" json:"isDefault"`
}

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"passwordHash,omitempty" json:"-"`
	IsAdmin      bool               `bson:"isAdmin" json:"isAdmin"`
	Addresses    []Address          `bson:"addresses,omitempty" json:"addresses,omitempty"`
	ReferralCode string             `bson:"referralCode" json:"referralCode"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
	Version      int64              `bson:"version" json:"-"`
}

type Category string

const (
	CategoryMarvel  Category = "marvel"
	CategoryDC      Category = "dc"
	CategoryAnime   Category = "anime"
	CategoryGaming  Category = "gaming"
	CategoryClassic Category = "classic"
)

var Categories = []Category{CategoryMarvel, CategoryDC, CategoryAnime, CategoryGaming, CategoryClassic}

type Product struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	Description   string             `bson:"description" json:"description"`
	Price         float64            `bson:"price" json:"price"`
	DiscountPrice float64            `bson:"discountPrice,omitempty" json:"discountPrice,omitempty"`
	Category      Category           `bson:"category" json:"category"`
	Stock         int                `bson:"stock" json:"stock"`
	Images        []string           `bson:"images,omitempty" json:"images,omitempty"`
	Sizes         []string           `bson:"sizes,omitempty" json:"sizes,omitempty"`
	Colors        []string           `bson:"colors,omitempty" json:"colors,omitempty"`
	IsFeatured    bool               `bson:"isFeatured" json:"isFeatured"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
	Version       int64              `bson:"version" json:"-"`
}

// EffectivePrice is the price a new cart line snapshots: the discount
// price when one is set, the regular price otherwise.
func (p *Product) EffectivePrice() float64 {
	if p.DiscountPrice > 0 {
		return p.DiscountPrice
	}
	return p.Price
}

type CartItem struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProductID primitive.ObjectID `bson:"productId" json:"productId"`
	Name      string             `bson:"name" json:"name"`
	Image     string             `bson:"image,omitempty" json:"image,omitempty"`
	Price     float64            `bson:"price" json:"price"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	Size      string             `bson:"size,omitempty" json:"size,omitempty"`
	Color     string             `bson:"color,omitempty" json:"color,omitempty"`
}

type Cart struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     primitive.ObjectID `bson:"userId" json:"userId"`
	Items      []CartItem         `bson:"items" json:"items"`
	TotalPrice float64            `bson:"totalPrice" json:"totalPrice"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
	Version    int64              `bson:"version" json:"-"`
}

// Total derives the cart total from its remaining lines. It is never
// read back stale: every cart mutation stores the recomputed value.
func (c *Cart) Total() float64 {
	var total float64
	for _, it := range c.Items {
		total += it.Price * float64(it.Quantity)
	}
	return total
}

type PaymentMethod string

const (
	PaymentCreditCard     PaymentMethod = "credit_card"
	PaymentPaypal         PaymentMethod = "paypal"
	PaymentStripe         PaymentMethod = "stripe"
	PaymentRazorpay       PaymentMethod = "razorpay"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
)

var PaymentMethods = []PaymentMethod{
	PaymentCreditCard, PaymentPaypal, PaymentStripe, PaymentRazorpay, PaymentCashOnDelivery,
}

type OrderStatus string

const (
	StatusAwaitingApproval OrderStatus = "awaiting_approval"
	StatusApproved         OrderStatus = "approved"
	StatusRejected         OrderStatus = "rejected"
	StatusProcessing       OrderStatus = "processing"
	StatusPacked           OrderStatus = "packed"
	StatusShipped          OrderStatus = "shipped"
	StatusOutForDelivery   OrderStatus = "out_for_delivery"
	StatusDelivered        OrderStatus = "delivered"
	StatusCancelled        OrderStatus = "cancelled"
	StatusReturned         OrderStatus = "returned"
	StatusRefunded         OrderStatus = "refunded"
)

type RefundStatus string

const (
	RefundNone      RefundStatus = ""
	RefundProcessed RefundStatus = "processed"
)

// OrderItem is a point-in-time snapshot of a cart line. Later edits to
// the referenced product must not alter historical orders.
type OrderItem struct {
	ProductID primitive.ObjectID `bson:"productId" json:"productId"`
	Name      string             `bson:"name" json:"name"`
	Image     string             `bson:"image,omitempty" json:"image,omitempty"`
	Price     float64            `bson:"price" json:"price"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	Size      string             `bson:"size,omitempty" json:"size,omitempty"`
	Color     string             `bson:"color,omitempty" json:"color,omitempty"`
}

type PaymentResult struct {
	ID           string `bson:"id" json:"id"`
	Status       string `bson:"status" json:"status"`
	UpdateTime   string `bson:"updateTime,omitempty" json:"updateTime,omitempty"`
	EmailAddress string `bson:"emailAddress,omitempty" json:"emailAddress,omitempty"`
}

// StatusEvent is one entry of the append-only status history, the
// authoritative audit trail of an order.
type StatusEvent struct {
	Status    OrderStatus `bson:"status" json:"status"`
	Timestamp time.Time   `bson:"timestamp" json:"timestamp"`
	Note      string      `bson:"note,omitempty" json:"note,omitempty"`
}

type OrderNote struct {
	Content   string             `bson:"content" json:"content"`
	AuthorID  primitive.ObjectID `bson:"authorId" json:"authorId"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

type Tracking struct {
	Carrier           string     `bson:"carrier" json:"carrier"`
	TrackingNumber    string     `bson:"trackingNumber" json:"trackingNumber"`
	TrackingURL       string     `bson:"trackingUrl,omitempty" json:"trackingUrl,omitempty"`
	EstimatedDelivery *time.Time `bson:"estimatedDelivery,omitempty" json:"estimatedDelivery,omitempty"`
}

type Refund struct {
	ID        string    `bson:"id" json:"id"`
	Amount    float64   `bson:"amount" json:"amount"`
	Reason    string    `bson:"reason,omitempty" json:"reason,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Discount records a coupon or referral discount applied at checkout.
type Discount struct {
	Code   string  `bson:"code" json:"code"`
	Kind   string  `bson:"kind" json:"kind"` // "coupon" or "referral"
	Amount float64 `bson:"amount" json:"amount"`
}

type Order struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID          primitive.ObjectID `bson:"userId" json:"userId"`
	Items           []OrderItem        `bson:"orderItems" json:"orderItems"`
	ShippingAddress Address            `bson:"shippingAddress" json:"shippingAddress"`
	PaymentMethod   PaymentMethod      `bson:"paymentMethod" json:"paymentMethod"`
	PaymentResult   *PaymentResult     `bson:"paymentResult,omitempty" json:"paymentResult,omitempty"`

	ItemsPrice     float64   `bson:"itemsPrice" json:"itemsPrice"`
	TaxPrice       float64   `bson:"taxPrice" json:"taxPrice"`
	ShippingPrice  float64   `bson:"shippingPrice" json:"shippingPrice"`
	DiscountAmount float64   `bson:"discountAmount" json:"discountAmount"`
	TotalPrice     float64   `bson:"totalPrice" json:"totalPrice"`
	Discount       *Discount `bson:"discount,omitempty" json:"discount,omitempty"`

	IsPaid      bool               `bson:"isPaid" json:"isPaid"`
	PaidAt      *time.Time         `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	IsDelivered bool               `bson:"isDelivered" json:"isDelivered"`
	DeliveredAt *time.Time         `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	IsApproved  bool               `bson:"isApproved" json:"isApproved"`
	ApprovedAt  *time.Time         `bson:"approvedAt,omitempty" json:"approvedAt,omitempty"`
	ApprovedBy  primitive.ObjectID `bson:"approvedBy,omitempty" json:"approvedBy,omitempty"`

	Status             OrderStatus   `bson:"status" json:"status"`
	StatusHistory      []StatusEvent `bson:"statusHistory" json:"statusHistory"`
	CancellationReason string        `bson:"cancellationReason,omitempty" json:"cancellationReason,omitempty"`

	Notes        []OrderNote  `bson:"adminNotes,omitempty" json:"adminNotes,omitempty"`
	RefundStatus RefundStatus `bson:"refundStatus,omitempty" json:"refundStatus,omitempty"`
	Refunds      []Refund     `bson:"refunds,omitempty" json:"refunds,omitempty"`
	Tracking     *Tracking    `bson:"tracking,omitempty" json:"tracking,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
	Version   int64     `bson:"version" json:"-"`
}
