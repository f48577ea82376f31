// Package cart owns the mapping of a user to a mutable collection of
// line items and keeps the derived total in step with every mutation.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"teestyle/internal/models"
	"teestyle/internal/store"
)

const casRetries = 3

type Service struct {
	carts    store.Collection[models.Cart]
	products store.Collection[models.Product]
	errorLog *log.Logger
}

func NewService(carts store.Collection[models.Cart], products store.Collection[models.Product], errorLog *log.Logger) *Service {
	return &Service{carts: carts, products: products, errorLog: errorLog}
}

// GetOrCreate returns the user's cart, creating an empty one lazily on
// first use. Carts are 1:1 with users.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (models.Cart, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.Cart{}, models.ErrNotFound
	}

	existing, err := s.carts.Find(ctx, bson.M{"userId": uid})
	if err != nil {
		return models.Cart{}, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	now := time.Now()
	cart := models.Cart{
		ID:        primitive.NewObjectID(),
		UserID:    uid,
		Items:     []models.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	return s.carts.Insert(ctx, cart)
}

// AddItem appends a line for the product, snapshotting its current
// discount-or-regular price. Adding the same product+size+color triple
// again increments the existing line instead of duplicating it.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int, size, color string) (models.Cart, error) {
	if quantity < 1 {
		return models.Cart{}, &models.ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return models.Cart{}, err
	}
	if product.Stock < quantity {
		return models.Cart{}, fmt.Errorf("%w for %q", models.ErrInsufficientStock, product.Name)
	}

	for i := 0; i < casRetries; i++ {
		cart, err := s.GetOrCreate(ctx, userID)
		if err != nil {
			return models.Cart{}, err
		}

		items := append([]models.CartItem(nil), cart.Items...)
		merged := false
		for j := range items {
			if items[j].ProductID == product.ID && items[j].Size == size && items[j].Color == color {
				items[j].Quantity += quantity
				merged = true
				break
			}
		}
		if !merged {
			image := ""
			if len(product.Images) > 0 {
				image = product.Images[0]
			}
			items = append(items, models.CartItem{
				ID:        primitive.NewObjectID(),
				ProductID: product.ID,
				Name:      product.Name,
				Image:     image,
				Price:     product.EffectivePrice(),
				Quantity:  quantity,
				Size:      size,
				Color:     color,
			})
		}

		updated, err := s.storeItems(ctx, cart, items)
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		return updated, err
	}
	return models.Cart{}, models.ErrConflict
}

// UpdateItemQuantity sets the quantity of an existing line, re-checking
// the product's current stock.
func (s *Service) UpdateItemQuantity(ctx context.Context, userID, itemID string, quantity int) (models.Cart, error) {
	if quantity < 1 {
		return models.Cart{}, &models.ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}
	itemOID, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return models.Cart{}, models.ErrNotFound
	}

	for i := 0; i < casRetries; i++ {
		cart, err := s.find(ctx, userID)
		if err != nil {
			return models.Cart{}, err
		}

		items := append([]models.CartItem(nil), cart.Items...)
		idx := -1
		for j := range items {
			if items[j].ID == itemOID {
				idx = j
				break
			}
		}
		if idx < 0 {
			return models.Cart{}, models.ErrNotFound
		}

		product, err := s.products.FindByID(ctx, items[idx].ProductID.Hex())
		if err != nil {
			return models.Cart{}, err
		}
		if product.Stock < quantity {
			return models.Cart{}, fmt.Errorf("%w for %q", models.ErrInsufficientStock, product.Name)
		}
		items[idx].Quantity = quantity

		updated, err := s.storeItems(ctx, cart, items)
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		return updated, err
	}
	return models.Cart{}, models.ErrConflict
}

// RemoveItem drops a line if present. Removing an item that is already
// gone is not an error; a missing cart is.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (models.Cart, error) {
	itemOID, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		itemOID = primitive.NilObjectID
	}

	for i := 0; i < casRetries; i++ {
		cart, err := s.find(ctx, userID)
		if err != nil {
			return models.Cart{}, err
		}

		items := make([]models.CartItem, 0, len(cart.Items))
		for _, it := range cart.Items {
			if it.ID != itemOID {
				items = append(items, it)
			}
		}
		if len(items) == len(cart.Items) {
			return cart, nil
		}

		updated, err := s.storeItems(ctx, cart, items)
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		return updated, err
	}
	return models.Cart{}, models.ErrConflict
}

// Clear empties the item list and zeroes the total. The cart record
// itself stays; order creation calls this after snapshotting.
func (s *Service) Clear(ctx context.Context, userID string) (models.Cart, error) {
	for i := 0; i < casRetries; i++ {
		cart, err := s.find(ctx, userID)
		if err != nil {
			return models.Cart{}, err
		}
		updated, err := s.storeItems(ctx, cart, []models.CartItem{})
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		return updated, err
	}
	return models.Cart{}, models.ErrConflict
}

func (s *Service) find(ctx context.Context, userID string) (models.Cart, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.Cart{}, models.ErrNotFound
	}
	carts, err := s.carts.Find(ctx, bson.M{"userId": uid})
	if err != nil {
		return models.Cart{}, err
	}
	if len(carts) == 0 {
		return models.Cart{}, models.ErrNotFound
	}
	return carts[0], nil
}

// storeItems writes a new item list with the total recomputed, guarded
// on the cart version so concurrent read-modify-write cycles retry
// instead of silently losing lines.
func (s *Service) storeItems(ctx context.Context, cart models.Cart, items []models.CartItem) (models.Cart, error) {
	next := cart
	next.Items = items
	patch := bson.M{
		"$set": bson.M{
			"items":      items,
			"totalPrice": next.Total(),
			"updatedAt":  time.Now(),
		},
		"$inc": bson.M{"version": 1},
	}
	return s.carts.UpdateWhere(ctx, cart.ID.Hex(), bson.M{"version": cart.Version}, patch)
}
