// Command proxycache runs a forwarding HTTP/1.x proxy with an in-process
// LRU response cache. Invocation: proxycache <port>.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/arnav-deka/proxycache/pkg/cache"
	"github.com/arnav-deka/proxycache/pkg/config"
	"github.com/arnav-deka/proxycache/pkg/metrics"
	"github.com/arnav-deka/proxycache/pkg/server"
	"github.com/arnav-deka/proxycache/pkg/worker"
)

func main() {
	cfg, err := config.FromArgs(os.Args, config.OSEnv)
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("proxy exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	c := cache.New(cfg.CacheMaxTotalBytes, cfg.CacheMaxElementBytes)
	m := metrics.New(c)
	w := worker.New(c, logger, m)

	acc, err := server.New(cfg.Port, cfg.MaxClients, w, logger, m)
	if err != nil {
		return err
	}
	defer acc.Close()

	if cfg.MetricsPort != 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsAddr := ":" + strconv.Itoa(cfg.MetricsPort)
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error("metrics listener stopped", zap.Error(err))
			}
		}()
		logger.Info("metrics endpoint listening", zap.String("addr", metricsAddr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down, closing listener")
		acc.Close()
	}()

	logger.Info("proxy listening", zap.String("addr", acc.Addr().String()), zap.Int("max_clients", cfg.MaxClients))

	err = acc.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
