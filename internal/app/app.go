package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/Spec-DY/Drone-Panel/internal/config"
	"github.com/Spec-DY/Drone-Panel/internal/ingest"
	"github.com/Spec-DY/Drone-Panel/internal/journal"
	"github.com/Spec-DY/Drone-Panel/internal/mqttbroker"
	"github.com/Spec-DY/Drone-Panel/internal/natsingest"
	"github.com/Spec-DY/Drone-Panel/internal/query"
	"github.com/Spec-DY/Drone-Panel/internal/store"
)

// App wires together the telemetry services and manages their lifecycle.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	store   *store.Store
	ingest  *ingest.Service
	query   *query.Service
	journal *journal.Writer

	broker *mqttbroker.Broker
	nats   *natsingest.Subscriber
	mdns   *zeroconf.Server
}

// New constructs a new application instance.
func New(cfg config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}
}

// wire builds the ingestion and query services on top of st. Both receive
// the same store and never reference each other.
func (a *App) wire(st *store.Store) {
	a.store = st
	a.ingest = ingest.New(st, a.logger, ingest.WithMaxBatch(a.cfg.MaxBatch))
	a.query = query.New(st, a.logger, query.WithMaxLimit(a.cfg.MaxQueryLimit))
	if a.cfg.JournalDir != "" {
		a.journal = journal.New(a.cfg.JournalDir)
	}
}

// Run starts all configured services and blocks until the context is cancelled or an error occurs.
func (a *App) Run(ctx context.Context) error {
	st, err := store.Open(a.cfg.DatabaseDriver, a.cfg.DSN(), store.WithTimeout(a.cfg.StoreTimeout))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			a.logger.Error("close store", "error", cerr)
		}
	}()

	if err := st.InitSchema(ctx); err != nil {
		return err
	}
	a.logger.Info("store ready", "driver", st.Driver())
	a.wire(st)

	broker := mqttbroker.New(a.logger, mqttbroker.WithMaxPacketSize(int(a.cfg.MaxBodyBytes)))
	broker.SetPublishHandler(a.handleMQTTPublish)
	a.broker = broker
	brokerErrCh, err := broker.Start(a.cfg.MQTTBindAddress)
	if err != nil {
		return err
	}

	if a.cfg.NATSURL != "" {
		sub, err := natsingest.Start(a.cfg.NATSURL, a.ingest, a.logger)
		if err != nil {
			_ = broker.Stop()
			return err
		}
		a.nats = sub
		defer func() {
			if cerr := sub.Close(); cerr != nil {
				a.logger.Error("close nats subscriber", "error", cerr)
			}
		}()
	}

	if a.cfg.MDNS {
		if err := a.startMDNS(listenPort(broker.Addr())); err != nil {
			a.logger.Warn("mDNS advertisement failed", "error", err)
		}
		defer a.stopMDNS()
	}

	httpErrCh := make(chan error, 1)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			var errs []error
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
			} else {
				a.logger.Info("http server stopped")
			}

			if err := a.broker.Stop(); err != nil {
				errs = append(errs, err)
			} else {
				a.logger.Info("mqtt broker stopped")
			}
			return errors.Join(errs...)
		case err := <-httpErrCh:
			if err != nil {
				_ = a.broker.Stop()
				return err
			}
		case err, ok := <-brokerErrCh:
			if !ok {
				brokerErrCh = nil
				continue
			}
			if err != nil {
				_ = httpServer.Shutdown(context.Background())
				_ = a.broker.Stop()
				return err
			}
		}
	}
}

func listenPort(addr net.Addr) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}
