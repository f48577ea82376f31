// Package catalog owns the read-mostly product records and the stock
// counters the order pipeline decrements and restores.
package catalog

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
	products store.Collection[models.Product]
	infoLog  *log.Logger
	errorLog *log.Logger
}

func NewService(products store.Collection[models.Product], infoLog, errorLog *log.Logger) *Service {
	return &Service{products: products, infoLog: infoLog, errorLog: errorLog}
}

type ListOptions struct {
	Search       string
	Category     models.Category
	FeaturedOnly bool
}

func (s *Service) List(ctx context.Context, opts ListOptions) ([]models.Product, error) {
	filter := bson.M{}
	if opts.Search != "" {
		filter["name"] = bson.M{"$regex": opts.Search, "$options": "i"}
	}
	if opts.Category != "" {
		filter["category"] = opts.Category
	}
	if opts.FeaturedOnly {
		filter["isFeatured"] = true
	}
	return s.products.Find(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id string) (models.Product, error) {
	return s.products.FindByID(ctx, id)
}

func (s *Service) Create(ctx context.Context, p models.Product) (models.Product, error) {
	if err := validate(&p); err != nil {
		return models.Product{}, err
	}
	now := time.Now()
	p.ID = primitive.NewObjectID()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Version = 1
	return s.products.Insert(ctx, p)
}

// ProductUpdate carries the fields an admin edit may change; nil fields
// are left untouched.
type ProductUpdate struct {
	Name          *string
	Description   *string
	Price         *float64
	DiscountPrice *float64
	Category      *models.Category
	Stock         *int
	Images        []string
	Sizes         []string
	Colors        []string
	IsFeatured    *bool
}

func (s *Service) Update(ctx context.Context, id string, u ProductUpdate) (models.Product, error) {
	for i := 0; i < casRetries; i++ {
		p, err := s.products.FindByID(ctx, id)
		if err != nil {
			return models.Product{}, err
		}

		apply(&p, u)
		if err := validate(&p); err != nil {
			return models.Product{}, err
		}

		patch := bson.M{
			"$set": bson.M{
				"name":          p.Name,
				"description":   p.Description,
				"price":         p.Price,
				"discountPrice": p.DiscountPrice,
				"category":      p.Category,
				"stock":         p.Stock,
				"images":        p.Images,
				"sizes":         p.Sizes,
				"colors":        p.Colors,
				"isFeatured":    p.IsFeatured,
				"updatedAt":     time.Now(),
			},
			"$inc": bson.M{"version": 1},
		}
		updated, err := s.products.UpdateWhere(ctx, id, bson.M{"version": p.Version}, patch)
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		return updated, err
	}
	return models.Product{}, models.ErrConflict
}

func (s *Service) Delete(ctx context.Context, id string) error {
	removed, err := s.products.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return models.ErrNotFound
	}
	return nil
}

// AdjustStock applies a stock delta, refusing to let the counter go
// negative. The version guard keeps the check valid against concurrent
// adjustments.
func (s *Service) AdjustStock(ctx context.Context, id string, delta int) (models.Product, error) {
	for i := 0; i < casRetries; i++ {
		p, err := s.products.FindByID(ctx, id)
		if err != nil {
			return models.Product{}, err
		}
		if p.Stock+delta < 0 {
			return models.Product{}, fmt.Errorf("%w for %q", models.ErrInsufficientStock, p.Name)
		}

		patch := bson.M{
			"$inc": bson.M{"stock": delta, "version": 1},
			"$set": bson.M{"updatedAt": time.Now()},
		}
		updated, err := s.products.UpdateWhere(ctx, id, bson.M{"version": p.Version}, patch)
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		return updated, err
	}
	return models.Product{}, models.ErrConflict
}

func apply(p *models.Product, u ProductUpdate) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.DiscountPrice != nil {
		p.DiscountPrice = *u.DiscountPrice
	}
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.Stock != nil {
		p.Stock = *u.Stock
	}
	if u.Images != nil {
		p.Images = u.Images
	}
	if u.Sizes != nil {
		p.Sizes = u.Sizes
	}
	if u.Colors != nil {
		p.Colors = u.Colors
	}
	if u.IsFeatured != nil {
		p.IsFeatured = *u.IsFeatured
	}
}

func validate(p *models.Product) error {
	if p.Name == "" {
		return &models.ValidationError{Field: "name", Reason: "required"}
	}
	if p.Price <= 0 {
		return &models.ValidationError{Field: "price", Reason: "must be positive"}
	}
	if p.DiscountPrice < 0 {
		return &models.ValidationError{Field: "discountPrice", Reason: "must not be negative"}
	}
	if p.DiscountPrice > 0 && p.DiscountPrice >= p.Price {
		return &models.ValidationError{Field: "discountPrice", Reason: "must be lower than price"}
	}
	if p.Stock < 0 {
		return &models.ValidationError{Field: "stock", Reason: "must not be negative"}
	}
	if !knownCategory(p.Category) {
		return &models.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", p.Category)}
	}
	return nil
}

func knownCategory(c models.Category) bool {
	for _, known := range models.Categories {
		if c == known {
			return true
		}
	}
	return false
}
