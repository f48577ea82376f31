package main

import (
	"net/http"

	"github.com/bmizerany/pat"
)

func (app *application) routes() http.Handler {
	mux := pat.New()

	mux.Post("/api/register", http.HandlerFunc(app.register))
	mux.Post("/api/login", http.HandlerFunc(app.login))
	mux.Post("/api/logout", http.HandlerFunc(app.logout))

	mux.Get("/api/products", http.HandlerFunc(app.listProducts))
	mux.Get("/api/products/:id", http.HandlerFunc(app.showProduct))
	mux.Post("/api/products", app.requireAdmin(app.createProduct))
	mux.Put("/api/products/:id", app.requireAdmin(app.updateProduct))
	mux.Del("/api/products/:id", app.requireAdmin(app.deleteProduct))

	mux.Get("/api/cart", app.requireAuth(app.showCart))
	mux.Post("/api/cart/items", app.requireAuth(app.addCartItem))
	mux.Put("/api/cart/items/:id", app.requireAuth(app.updateCartItem))
	mux.Del("/api/cart/items/:id", app.requireAuth(app.removeCartItem))

	mux.Post("/api/orders", app.requireAuth(app.createOrder))
	mux.Get("/api/orders", app.requireAuth(app.listMyOrders))
	mux.Get("/api/orders/:id", app.requireAuth(app.showOrder))
	mux.Post("/api/orders/:id/pay", app.requireAuth(app.payOrder))

	mux.Get("/api/admin/orders", app.requireAdmin(app.listAllOrders))
	mux.Put("/api/admin/orders/:id/approve", app.requireAdmin(app.approveOrder))
	mux.Put("/api/admin/orders/:id/status", app.requireAdmin(app.updateOrderStatus))
	mux.Post("/api/admin/orders/:id/cancel", app.requireAdmin(app.cancelOrder))
	mux.Post("/api/admin/orders/:id/refund", app.requireAdmin(app.refundOrder))
	mux.Post("/api/admin/orders/:id/shipment", app.requireAdmin(app.addShipment))
	mux.Post("/api/admin/orders/:id/notes", app.requireAdmin(app.addOrderNote))

	mux.Post("/api/users/me/addresses", app.requireAuth(app.addAddress))
	mux.Put("/api/users/me", app.requireAuth(app.updateProfile))

	mux.Post("/api/webhooks/stripe", http.HandlerFunc(app.stripeWebhook))

	return app.logRequest(app.recoverPanic(mux))
}
