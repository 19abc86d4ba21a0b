package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/otel/trace"

	"shopper/pkg/cart"
	"shopper/pkg/events"
	"shopper/pkg/logger"
	"shopper/pkg/metrics"
	"shopper/pkg/order"
	"shopper/pkg/otel"
	"shopper/pkg/product"
	"shopper/pkg/store/memory"
	"shopper/pkg/store/postgres"
	"shopper/pkg/user"
)

var (
	log         *logger.Logger
	tracer      trace.Tracer
	redisClient *redis.Client

	users    user.Repository
	catalog  *product.Service
	carts    *cart.Service
	orders   *order.Service
	products product.Repository
)

// @title Shopper API
// @version 1.0
// @description Storefront backend: catalog, cart and inventory-safe order placement
// @host localhost:8443
// @BasePath /
func main() {
	log = logger.New(os.Stdout, logger.LevelInfo, "shopper", otel.GetTraceID)
	defer log.Sync()

	ctx := context.Background()

	tp, shutdown, err := otel.InitTracing(log, otel.Config{
		ServiceName: "shopper",
		Host:        os.Getenv("OTEL_HOST"),
		Probability: 1.0,
	})
	if err != nil {
		log.Error(ctx, "init tracing", "error", err)
		os.Exit(1)
	}
	defer shutdown(context.Background())
	tracer = tp.Tracer("shopper")

	var (
		cartsRepo  cart.Repository
		ordersRepo order.Repository
		uow        order.UnitOfWork
	)
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			log.Error(ctx, "db connect", "error", err)
			os.Exit(1)
		}
		pg := postgres.New(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error(ctx, "ensure schema", "error", err)
			os.Exit(1)
		}
		users, products, cartsRepo, ordersRepo, uow = pg, pg, pg, pg, pg
	} else {
		log.Info(ctx, "DATABASE_URL not set, using in-memory store")
		mem := memory.New()
		users, products, cartsRepo, ordersRepo, uow = mem, mem, mem, mem, mem
	}

	redisClient = redis.NewClient(&redis.Options{Addr: os.Getenv("REDIS_ADDR")})

	sm := metrics.NewServerMetrics("api")
	sm.Register(prometheus.DefaultRegisterer)
	om := metrics.NewOrderMetrics()
	om.Register(prometheus.DefaultRegisterer)

	var pub order.EventPublisher
	if kp := events.NewPublisher(events.Brokers(os.Getenv("KAFKA_BROKERS")), "shopper.orders"); kp != nil {
		defer kp.Close()
		pub = kp
	}

	catalog = product.NewService(products)
	carts = cart.NewService(cartsRepo, products)
	orders = order.NewService(uow, ordersRepo, pub, om, log, order.Config{
		MaxRetries:   envInt("ORDER_MAX_RETRIES", 0),
		RetryBackoff: envDuration("ORDER_RETRY_BACKOFF", 0),
	})

	r := mux.NewRouter()
	r.Use(traceMiddleware)
	r.Use(sm.Middleware)

	r.HandleFunc("/signup", signupHandler).Methods(http.MethodPost)
	r.HandleFunc("/login", loginHandler).Methods(http.MethodPost)
	r.HandleFunc("/logout", logoutHandler).Methods(http.MethodPost)
	r.HandleFunc("/products", listProductsHandler).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", getProductHandler).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}/images", listProductImagesHandler).Methods(http.MethodGet)
	r.HandleFunc("/categories", listCategoriesHandler).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	api := r.NewRoute().Subrouter()
	api.Use(authMiddleware)
	api.HandleFunc("/me", meHandler).Methods(http.MethodGet)
	api.HandleFunc("/me", updateMeHandler).Methods(http.MethodPut)
	api.HandleFunc("/addresses", listAddressesHandler).Methods(http.MethodGet)
	api.HandleFunc("/addresses", createAddressHandler).Methods(http.MethodPost)
	api.HandleFunc("/addresses/{id}", updateAddressHandler).Methods(http.MethodPut)
	api.HandleFunc("/addresses/{id}", deleteAddressHandler).Methods(http.MethodDelete)
	api.HandleFunc("/cart", getCartHandler).Methods(http.MethodGet)
	api.HandleFunc("/cart/items", addCartItemHandler).Methods(http.MethodPost)
	api.HandleFunc("/cart/items/{id}", updateCartItemHandler).Methods(http.MethodPut)
	api.HandleFunc("/cart/items/{id}", removeCartItemHandler).Methods(http.MethodDelete)
	api.HandleFunc("/orders", createOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders", listOrdersHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", getOrderHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/cancel", cancelOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/pay", payOrderHandler).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(adminMiddleware)
	admin.HandleFunc("/products", adminCreateProductHandler).Methods(http.MethodPost)
	admin.HandleFunc("/products/{id}", adminUpdateProductHandler).Methods(http.MethodPut)
	admin.HandleFunc("/products/{id}", adminDeleteProductHandler).Methods(http.MethodDelete)
	admin.HandleFunc("/products/{id}/activate", adminActivateProductHandler).Methods(http.MethodPost)
	admin.HandleFunc("/products/{id}/images", adminAddImageHandler).Methods(http.MethodPost)
	admin.HandleFunc("/images/{id}", adminDeleteImageHandler).Methods(http.MethodDelete)
	admin.HandleFunc("/categories", adminCreateCategoryHandler).Methods(http.MethodPost)
	admin.HandleFunc("/categories/{id}", adminDeleteCategoryHandler).Methods(http.MethodDelete)

	addr := os.Getenv("API_ADDR")
	if addr == "" {
		addr = ":8443"
	}
	cert, key := os.Getenv("TLS_CERT"), os.Getenv("TLS_KEY")

	log.Info(ctx, "listening", "addr", addr, "tls", cert != "")
	if cert != "" {
		err = http.ListenAndServeTLS(addr, cert, key, r)
	} else {
		err = http.ListenAndServe(addr, r)
	}
	log.Error(ctx, "server closed", "error", err)
}

func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.InjectTracing(r.Context(), tracer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(name string, fallback time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
