package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"teestyle/internal/auth"
	"teestyle/internal/cart"
	"teestyle/internal/catalog"
	"teestyle/internal/models"
	"teestyle/internal/order"
	"teestyle/internal/payment"
	"teestyle/internal/repository"
	"teestyle/internal/store"
)

type application struct {
	infoLog  *log.Logger
	errorLog *log.Logger
	session  *scs.SessionManager
	tokens   *auth.Manager
	health   *store.Health
	client   *mongo.Client
	users    *repository.UserRepository
	catalog  *catalog.Service
	carts    *cart.Service
	orders   *order.Service
	payments *payment.Client
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment as-is")
	}
	addr := flag.String("addr", ":4000", "HTTP network address")
	flag.Parse()

	infoLog := log.New(os.Stdout, "INFO\t", log.Ldate|log.Ltime)
	errorLog := log.New(os.Stderr, "ERROR\t", log.Ldate|log.Ltime|log.Lshortfile)

	uri := getEnv("MONGO_URI", "mongodb://localhost:27017")
	dbName := getEnv("MONGO_DB", "teestyle")

	client, err := mongo.Connect(context.Background(),
		options.Client().ApplyURI(uri).SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		errorLog.Fatal(err)
	}
	db := client.Database(dbName)

	health := store.NewHealth(infoLog, errorLog)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		errorLog.Printf("mongodb unreachable at startup, serving from in-memory store: %v", err)
	} else {
		health.MarkUp()
	}
	cancel()

	usersColl := store.NewFallback(store.NewMongo[models.User](db, store.CollUsers), store.NewMemory[models.User](), health)
	productsColl := store.NewFallback(store.NewMongo[models.Product](db, store.CollProducts), store.NewMemory[models.Product](), health)
	cartsColl := store.NewFallback(store.NewMongo[models.Cart](db, store.CollCarts), store.NewMemory[models.Cart](), health)
	ordersColl := store.NewFallback(store.NewMongo[models.Order](db, store.CollOrders), store.NewMemory[models.Order](), health)

	catalogSvc := catalog.NewService(productsColl, infoLog, errorLog)
	cartSvc := cart.NewService(cartsColl, productsColl, errorLog)

	session := scs.New()
	session.Lifetime = 12 * time.Hour

	app := &application{
		infoLog:  infoLog,
		errorLog: errorLog,
		session:  session,
		tokens:   auth.NewManager(getEnv("JWT_SECRET", "dev-only-insecure-secret")),
		health:   health,
		client:   client,
		users:    repository.NewUserRepository(usersColl),
		catalog:  catalogSvc,
		carts:    cartSvc,
		orders:   order.NewService(ordersColl, usersColl, cartSvc, catalogSvc, infoLog, errorLog),
		payments: payment.New(os.Getenv("STRIPE_KEY"), os.Getenv("STRIPE_WEBHOOK_SECRET"), infoLog),
	}

	app.seedProducts()
	go app.storePinger(15 * time.Second)

	srv := &http.Server{
		Addr:     *addr,
		ErrorLog: errorLog,
		Handler:  app.session.LoadAndSave(app.routes()),
	}

	infoLog.Printf("Starting TeeStyle on %s", *addr)
	err = srv.ListenAndServe()
	errorLog.Fatal(err)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
