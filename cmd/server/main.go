// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fawa-io/drawer/pkg/auth"
	"github.com/fawa-io/drawer/pkg/bus"
	"github.com/fawa-io/drawer/pkg/config"
	"github.com/fawa-io/drawer/pkg/cors"
	"github.com/fawa-io/drawer/pkg/fwlog"
	"github.com/fawa-io/drawer/pkg/store"
	"github.com/fawa-io/drawer/service/canvas"
	"github.com/fawa-io/drawer/service/control"
)

func main() {
	fwlog.SetLogger(fwlog.NewZapLogger())

	if err := config.Initconfig(); err != nil {
		fwlog.Fatalf("Failed to initialize configuration: %v", err)
	}
	cfg := config.Get()

	logLevel, err := fwlog.ParseLevel(cfg.LogLevel)
	if err != nil {
		fwlog.Warnf("Invalid initial log level '%s': %v. Using default.", cfg.LogLevel, err)
	} else {
		fwlog.SetLevel(logLevel)
	}
	fwlog.Infof("Logger initialized with level: %s", cfg.LogLevel)

	if cfg.JWTSecret == "" {
		fwlog.Fatalf("JWT_SECRET must be set")
	}
	keys := auth.NewKeys(cfg.JWTSecret)

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		fwlog.Fatalf("Failed to open event store: %v", err)
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The control bus stays process-local unless redis bridges it to the
	// other instances.
	b := bus.New()
	var publisher control.BusPublisher = b
	if cfg.RedisAddr != "" {
		bridge := bus.NewBridge(b, redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
		publisher = bridge
		go func() {
			if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
				fwlog.Errorf("Control-bus bridge stopped: %v", err)
			}
		}()
		fwlog.Infof("Control-bus bridge connected to redis at %s", cfg.RedisAddr)
	}

	hub := canvas.NewHub()
	go hub.Run()

	listener := canvas.NewListener(keys, st, hub, b)
	go func() {
		if err := listener.Serve(); err != nil {
			fwlog.Fatalf("Streaming endpoint error: %v", err)
		}
	}()

	var wt *canvas.WebTransportServer
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		wt, err = canvas.NewWebTransportServer(cfg.WebTransportAddr, cfg.CertFile, cfg.KeyFile, keys, st, hub, b)
		if err != nil {
			fwlog.Fatalf("Failed to set up WebTransport endpoint: %v", err)
		}
		go func() {
			if err := wt.Serve(); err != nil {
				fwlog.Errorf("WebTransport server error: %v", err)
			}
		}()
	}

	ctrl := control.NewHandler(st, keys, publisher)
	httpServer := &http.Server{
		Addr:    cfg.BindTo,
		Handler: cors.NewCORS().Handler(ctrl.Router()),
	}
	go func() {
		fwlog.Infof("Control plane listening on %s", cfg.BindTo)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fwlog.Fatalf("Control plane error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fwlog.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fwlog.Errorf("Control plane shutdown error: %v", err)
	}
	if err := listener.Shutdown(shutdownCtx); err != nil {
		fwlog.Errorf("Streaming endpoint shutdown error: %v", err)
	}
	if wt != nil {
		if err := wt.Close(); err != nil {
			fwlog.Errorf("WebTransport shutdown error: %v", err)
		}
	}
	hub.Close()

	fwlog.Info("Server shutdown complete")
}
