// Package natsingest feeds telemetry published on NATS subjects into the
// ingestion service. Replies carry the ingestion receipt.
package natsingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Spec-DY/Drone-Panel/internal/ingest"
)

// Subjects and queue group served by the subscriber.
const (
	SubjectOne   = "telemetry.ingest"
	SubjectBatch = "telemetry.ingest.batch"
	QueueGroup   = "telemetry-ingest"

	drainTimeout = 5 * time.Second
)

// Acceptor is the part of the ingestion service the subscriber drives.
type Acceptor interface {
	AcceptOne(ctx context.Context, data []byte, fallbackDevice string) ingest.Receipt
	AcceptBatch(ctx context.Context, data []byte) ingest.Receipt
}

// Subscriber holds the NATS connection and its queue subscriptions.
type Subscriber struct {
	nc     *nats.Conn
	subs   []*nats.Subscription
	svc    Acceptor
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	closed chan struct{}
}

// Start connects to url and subscribes to both ingestion subjects in the
// shared queue group, so several servers split the load.
func Start(url string, svc Acceptor, logger *slog.Logger) (*Subscriber, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "nats")
	closed := make(chan struct{})

	nc, err := nats.Connect(url,
		nats.Name(QueueGroup),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscriber{nc: nc, svc: svc, logger: logger, ctx: ctx, cancel: cancel, closed: closed}

	for _, subject := range []string{SubjectOne, SubjectBatch} {
		sub, err := nc.QueueSubscribe(subject, QueueGroup, s.onMessage)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}

	logger.Info("nats ingestion subscribed", "url", url, "group", QueueGroup)
	return s, nil
}

// Close drains in-flight messages, waiting up to drainTimeout, then closes
// the connection and cancels any handler still running.
func (s *Subscriber) Close() error {
	defer s.cancel()

	if err := s.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		s.nc.Close()
		return fmt.Errorf("nats drain: %w", err)
	}

	select {
	case <-s.closed:
	case <-time.After(drainTimeout):
		s.logger.Warn("nats drain timed out")
		s.nc.Close()
	}
	return nil
}

func (s *Subscriber) onMessage(msg *nats.Msg) {
	receipt := s.handle(s.ctx, msg.Subject, msg.Data)
	if msg.Reply == "" {
		return
	}

	body, err := json.Marshal(receipt)
	if err != nil {
		s.logger.Error("encode receipt", "error", err)
		return
	}
	if err := msg.Respond(body); err != nil {
		s.logger.Warn("reply failed", "subject", msg.Subject, "error", err)
	}
}

func (s *Subscriber) handle(ctx context.Context, subject string, data []byte) ingest.Receipt {
	switch subject {
	case SubjectBatch:
		return s.svc.AcceptBatch(ctx, data)
	default:
		return s.svc.AcceptOne(ctx, data, "")
	}
}
