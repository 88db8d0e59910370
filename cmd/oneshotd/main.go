package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vtex/go-oneshot/admin"
	"github.com/vtex/go-oneshot/config"
	"github.com/vtex/go-oneshot/event"
	"github.com/vtex/go-oneshot/prefs"
	"github.com/vtex/go-oneshot/prometheus"
	"github.com/vtex/go-oneshot/redis"
	"github.com/vtex/go-oneshot/worker"
)

const (
	shutdownTimeout = 5 * time.Second
	gateCacheBytes  = 1 << 20
	gateCacheMaxAge = 10 * time.Minute
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:          "oneshotd",
	Short:        "serve one-shot event channels over HTTP and Redis pub/sub",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to a config file (yaml, toml or json)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).
			WithFields(logrus.Fields{
				"code":     "oneshotd_failed",
				"category": "oneshotd",
			}).
			Fatal("oneshotd stopped with an error")
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	config.ConfigureLogging(cfg.Log)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	prometheus.InitClient()
	pool := event.NewPool(prometheus.GetClient())
	loop := worker.StartLoop(ctx, cfg.Loop.Capacity)

	var (
		gateStore = prefs.NewMemory()
		checks    []admin.HealthCheck
	)
	if cfg.Redis.Enabled() {
		opts := cfg.Redis.Options()

		store := redis.NewStore(opts)
		defer store.Close()
		gateStore = prefs.Hybrid(prefs.NewLRU(gateCacheBytes, gateCacheMaxAge), store)
		checks = append(checks, store.Ping)

		client := redis.NewClient(opts)
		defer client.Close()
		source := redis.NewSource(client, opts.Namespace, pool, loop)
		g.Go(func() error {
			return source.Run(ctx, cfg.Redis.Patterns)
		})
	}
	gate := prefs.NewGate(gateStore, cfg.Redis.Namespace)

	server := &http.Server{
		Addr:    cfg.Admin.Listen,
		Handler: admin.NewRouter(pool, loop, gate, checks...),
	}
	g.Go(func() error {
		logrus.WithFields(logrus.Fields{
			"code":     "admin_listening",
			"category": "oneshotd",
			"addr":     cfg.Admin.Listen,
		}).Info("Admin server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrapf(err, "Admin server failed on %s", cfg.Admin.Listen)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	<-loop.Done()
	return err
}
