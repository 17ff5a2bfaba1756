package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/rowguard/pkg/observability"
	"github.com/platinummonkey/rowguard/pkg/storage/postgres"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		log := e.logger
		log.WithField("version", version).Info("Starting rowguard")
		defer log.Info("rowguard stopped")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()
		ctx = observability.WithLogger(ctx, log)

		tp, err := observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        e.cfg.Observability.OTelEnabled,
			Endpoint:       e.cfg.Observability.OTelEndpoint,
			ServiceName:    e.cfg.Observability.OTelServiceName,
			ServiceVersion: e.cfg.Observability.OTelServiceVersion,
			Insecure:       e.cfg.Observability.OTelInsecure,
		}, log)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			observability.ShutdownOTel(shutdownCtx, tp, log)
		}()

		db, err := e.openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		redisClient, err := e.openRedis(ctx)
		if err != nil {
			return err
		}
		if redisClient != nil {
			defer redisClient.Close()
		}

		a, err := newApp(e, db, redisClient)
		if err != nil {
			return err
		}

		if migrateOnStart {
			if err := migrateAll(ctx, e, db, a.policy); err != nil {
				return err
			}
		}

		if e.cfg.Observability.MetricsEnabled {
			postgres.StartStatsRoutine(ctx, db, a.metrics, 15*time.Second)
		}

		if e.cfg.Maintenance.Enabled {
			if err := a.sweeper.Start(ctx, e.cfg.Maintenance.Schedule); err != nil {
				return err
			}
			defer a.sweeper.Stop()
		}

		apiSrv := &http.Server{
			Addr:         net.JoinHostPort(e.cfg.Server.Host, e.cfg.Server.Port),
			Handler:      a.apiServer(e),
			ReadTimeout:  e.cfg.Server.ReadTimeout,
			WriteTimeout: e.cfg.Server.WriteTimeout,
			IdleTimeout:  e.cfg.Server.IdleTimeout,
			BaseContext:  func(net.Listener) context.Context { return ctx },
		}

		healthMux := http.NewServeMux()
		observability.RegisterHealthRoutes(healthMux, a.health)
		if e.cfg.Observability.MetricsEnabled {
			observability.RegisterMetricsEndpoint(healthMux, a.registry)
		}
		healthSrv := &http.Server{
			Addr:              net.JoinHostPort(e.cfg.Server.Host, e.cfg.Server.HealthPort),
			Handler:           healthMux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return listen(log, "API", apiSrv) })
		g.Go(func() error { return listen(log, "health", healthSrv) })
		g.Go(func() error {
			<-gctx.Done()
			log.Info("Shutting down servers")
			shutdownCtx, done := context.WithTimeout(context.Background(), e.cfg.Server.ShutdownTimeout)
			defer done()
			return errors.Join(apiSrv.Shutdown(shutdownCtx), healthSrv.Shutdown(shutdownCtx))
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "Apply migrations and table DDL before serving")
}

// listen serves until Shutdown. A clean shutdown is not an error.
func listen(log *observability.Logger, name string, srv *http.Server) error {
	log.WithFields(map[string]interface{}{"server": name, "addr": srv.Addr}).Info("Listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).WithField("server", name).Error("Server failed")
		return err
	}
	return nil
}
