package main

import (
	"context"
	"time"

	"teestyle/internal/catalog"
	"teestyle/internal/models"
)

// seedProducts fills an empty catalog with the starter lineup so a
// fresh install (or a memory-only boot) has something to sell.
func (app *application) seedProducts() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	existing, err := app.catalog.List(ctx, catalog.ListOptions{})
	if err != nil || len(existing) > 0 {
		return
	}

	seed := []models.Product{
		{
			Name:        "Spider-Verse Graphic Tee",
			Description: "Web-slinger print on heavyweight cotton.",
			Price:       24.99,
			Category:    models.CategoryMarvel,
			Stock:       50,
			Sizes:       []string{"S", "M", "L", "XL"},
			Colors:      []string{"red", "black"},
			IsFeatured:  true,
		},
		{
			Name:          "Dark Knight Tee",
			Description:   "Matte bat emblem on charcoal fabric.",
			Price:         26.99,
			DiscountPrice: 19.99,
			Category:      models.CategoryDC,
			Stock:         40,
			Sizes:         []string{"M", "L", "XL"},
			Colors:        []string{"black", "grey"},
		},
		{
			Name:        "Saiyan Training Tee",
			Description: "Gravity-room approved.",
			Price:       22.50,
			Category:    models.CategoryAnime,
			Stock:       35,
			Sizes:       []string{"S", "M", "L"},
			Colors:      []string{"orange", "blue"},
		},
		{
			Name:        "Retro Arcade Hero Tee",
			Description: "Pixel cape, infinite lives.",
			Price:       21.00,
			Category:    models.CategoryGaming,
			Stock:       60,
			Sizes:       []string{"S", "M", "L", "XL"},
			Colors:      []string{"white", "navy"},
		},
	}

	for _, p := range seed {
		if _, err := app.catalog.Create(ctx, p); err != nil {
			app.errorLog.Printf("seeding product %q: %v", p.Name, err)
		}
	}
	app.infoLog.Printf("seeded %d products", len(seed))
}
