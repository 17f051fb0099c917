// Package nats consumes profile-change events and feeds them into the write path.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kindred/internal/domain"
	domprofile "github.com/kailas-cloud/kindred/internal/domain/profile"
	profileuc "github.com/kailas-cloud/kindred/internal/usecase/profile"
)

// ProfileUpserter is the write path invoked per event.
type ProfileUpserter interface {
	Upsert(ctx context.Context, p domprofile.Profile) (profileuc.Result, error)
}

// ProfileChanged is the JSON payload published on the profile-change subject.
type ProfileChanged struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Bio       string   `json:"bio"`
	Location  string   `json:"location"`
	Skills    []string `json:"skills"`
	Interests []string `json:"interests"`
}

// Config holds connection and subscription settings.
type Config struct {
	URL            string
	Subject        string
	Queue          string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
	HandlerTimeout time.Duration
}

// Subscriber is a queue-group consumer of profile-change events.
type Subscriber struct {
	conn    *nats.Conn
	cfg     Config
	handler *Handler
	logger  *zap.Logger
}

// NewSubscriber connects to NATS.
func NewSubscriber(cfg Config, profiles ProfileUpserter, logger *zap.Logger) (*Subscriber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = 60
	}

	conn, err := nats.Connect(
		cfg.URL,
		nats.Name("kindred"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Subscriber{
		conn:    conn,
		cfg:     cfg,
		handler: NewHandler(profiles, cfg.HandlerTimeout, logger),
		logger:  logger,
	}, nil
}

// Run subscribes and blocks until ctx is done, then drains the subscription.
func (s *Subscriber) Run(ctx context.Context) error {
	sub, err := s.conn.QueueSubscribe(s.cfg.Subject, s.cfg.Queue, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		_ = s.handler.Handle(ctx, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := s.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	s.logger.Info("Subscribed to profile changes",
		zap.String("subject", s.cfg.Subject),
		zap.String("queue", s.cfg.Queue),
	)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := s.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// Close closes the connection.
func (s *Subscriber) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

// Handler decodes one event and runs the upsert.
type Handler struct {
	profiles ProfileUpserter
	timeout  time.Duration
	logger   *zap.Logger
}

// NewHandler creates an event handler. timeout <= 0 defaults to 30s.
func NewHandler(profiles ProfileUpserter, timeout time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{profiles: profiles, timeout: timeout, logger: logger}
}

// ErrBadPayload marks events that can never succeed.
var ErrBadPayload = errors.New("bad profile-change payload")

// Handle processes one payload. Errors are logged here; the returned error
// is for callers that want to count or redeliver.
func (h *Handler) Handle(ctx context.Context, data []byte) error {
	var ev ProfileChanged
	if err := json.Unmarshal(data, &ev); err != nil {
		h.logger.Warn("Dropping undecodable profile event", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrBadPayload, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	res, err := h.profiles.Upsert(ctx, domprofile.Profile{
		ID:        ev.ID,
		Name:      ev.Name,
		Bio:       ev.Bio,
		Location:  ev.Location,
		Skills:    ev.Skills,
		Interests: ev.Interests,
	})
	switch {
	case errors.Is(err, domain.ErrInvalidProfile):
		h.logger.Warn("Dropping invalid profile event", zap.String("entity_id", ev.ID), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrBadPayload, err)
	case err != nil:
		// сущность уже помечена stale, фоновый цикл её дожмёт
		h.logger.Error("Profile event upsert failed", zap.String("entity_id", ev.ID), zap.Error(err))
		return err
	}
	h.logger.Debug("Profile event applied",
		zap.String("entity_id", res.ID),
		zap.Int64("text_version", res.TextVersion),
		zap.Bool("unchanged", res.Unchanged),
	)
	return nil
}
