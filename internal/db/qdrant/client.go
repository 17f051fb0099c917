// Package qdrant opens gRPC connections to Qdrant.
package qdrant

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const maxMessageSize = 50 * 1024 * 1024

// Config holds Qdrant connection parameters.
type Config struct {
	Host    string
	Port    int
	UseTLS  bool
	APIKey  string
	Timeout time.Duration
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
}

// Validate checks the connection parameters.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}
	return nil
}

// Connect creates a Qdrant client and verifies it with a health check.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*qdrant.Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid qdrant config: %w", err)
	}

	qcfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(maxMessageSize),
				grpc.MaxCallSendMsgSize(maxMessageSize),
			),
		},
	}
	if !cfg.UseTLS {
		qcfg.GrpcOptions = append(qcfg.GrpcOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	hctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	reply, err := client.HealthCheck(hctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check: %w", err)
	}

	logger.Info("qdrant connected",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("version", reply.GetVersion()),
	)
	return client, nil
}
