package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tablefront/pos/internal/config"
	"github.com/tablefront/pos/internal/events"
	"github.com/tablefront/pos/internal/media"
	"github.com/tablefront/pos/internal/remote"
	"github.com/tablefront/pos/internal/router"
	"github.com/tablefront/pos/internal/service"
	"github.com/tablefront/pos/internal/store"
	"github.com/tablefront/pos/internal/store/backend"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	st, err := backend.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Unable to open %s store: %v", cfg.StoreBackend, err)
	}
	defer st.Close()
	log.Printf("Using %s store", cfg.StoreBackend)

	// Catalog reads and writes go to the remote API when one is configured.
	var catalogRepo store.CatalogRepository = st
	remoteCatalog := cfg.CatalogAPIURL != ""
	if remoteCatalog {
		client := remote.NewClient(cfg.CatalogAPIURL, cfg.CatalogAPITimeout)
		if err := client.Login(ctx, cfg.CatalogAPIUsername, cfg.CatalogAPIPassword); err != nil {
			log.Fatalf("Unable to log in to catalog API: %v", err)
		}
		defer client.Logout()
		catalogRepo = remote.NewCatalog(client)
		log.Printf("Catalog served by %s", cfg.CatalogAPIURL)
	}

	var pub events.Publisher = events.Noop{}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("Unable to connect to AMQP broker: %v", err)
		}
		defer amqpPub.Close()
		pub = amqpPub
		log.Printf("Publishing events to exchange %q", cfg.AMQPExchange)
	}

	catalog := service.NewCatalogService(catalogRepo, st, cfg.DefaultCurrency)
	// The remote API stores uploads itself; it receives them as multipart.
	if !remoteCatalog {
		images, err := media.NewDiskStore(cfg.MediaDir, cfg.MediaURL)
		if err != nil {
			log.Fatalf("Unable to prepare media dir: %v", err)
		}
		catalog.SetImageStore(images)
	}
	tables := service.NewTableService(st, pub)
	orders := service.NewOrderService(st, tables, catalog, service.OrderConfig{
		TaxRate:   cfg.TaxRate,
		Pricing:   cfg.BillPricing,
		Currency:  cfg.DefaultCurrency,
		Publisher: pub,
	})

	// Tables load before orders so occupancy can be checked against them.
	if err := catalog.Load(ctx); err != nil {
		log.Fatalf("Unable to load catalog: %v", err)
	}
	if err := tables.Load(ctx); err != nil {
		log.Fatalf("Unable to load tables: %v", err)
	}
	if err := orders.Load(ctx); err != nil {
		log.Fatalf("Unable to load orders: %v", err)
	}

	r := router.New(cfg, router.Services{
		Catalog: catalog,
		Tables:  tables,
		Orders:  orders,
		Users:   st,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Printf("Received %s, shutting down", sig)
	case err := <-errCh:
		log.Printf("ERROR: server: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: shutdown: %v", err)
	}
}
