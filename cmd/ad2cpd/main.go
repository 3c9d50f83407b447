package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"example.com/ad2cpgate/internal/config"
	"example.com/ad2cpgate/internal/objstore"
	"example.com/ad2cpgate/internal/server"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	addr := flag.String("addr", "", "listen address (overrides config port)")
	readTimeout := flag.Duration("read-timeout", 60*time.Second, "HTTP read timeout")
	writeTimeout := flag.Duration("write-timeout", 5*time.Minute, "HTTP write timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		log.Fatalf("storage dir: %v", err)
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	}
	rotator, err := config.SetupLogging(cfg.Logs, "ad2cpd", os.Stdout)
	if err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer rotator.Close()

	decoder, err := cfg.DecoderOptions()
	if err != nil {
		log.Fatalf("decoder options: %v", err)
	}
	var store *objstore.Store
	if cfg.Remote.Endpoint != "" {
		if store, err = objstore.New(cfg.RemoteOptions()); err != nil {
			log.Fatalf("object store: %v", err)
		}
	}
	srv, err := server.NewServer(server.Options{
		StorageDir:  cfg.StorageDir,
		Concurrency: cfg.Concurrency,
		Decoder:     decoder,
		Store:       store,
		RunLog:      filepath.Join(cfg.StorageDir, "runs.jsonl"),
	})
	if err != nil {
		log.Fatalf("server init: %v", err)
	}
	defer srv.Close()

	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	if *addr != "" {
		listenAddr = *addr
	}
	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(srv),
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
	}

	log.Printf("ad2cpd listening on %s", listenAddr)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("ad2cpd stopped")
}
