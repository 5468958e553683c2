package milvus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/turtacn/RAG-HealthBot/internal/config"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// ClientFactory builds an SDK client.
type ClientFactory func(ctx context.Context, conf client.Config) (client.Client, error)

// milvusNewClient is swapped in tests.
var milvusNewClient ClientFactory = client.NewClient

var (
	ErrConnectionFailed = errors.New(errors.ErrCodeServiceUnavailable, "milvus connection failed")
	ErrUnhealthy        = errors.New(errors.ErrCodeServiceUnavailable, "milvus unhealthy")
)

const (
	keepAliveTime    = 60 * time.Second
	keepAliveTimeout = 20 * time.Second
)

// Client owns the SDK connection.
type Client struct {
	mc      client.Client
	cfg     config.MilvusConfig
	logger  logging.Logger
	healthy atomic.Bool
	mu      sync.RWMutex
}

// NewClient dials Milvus and verifies it reports healthy.
func NewClient(cfg config.MilvusConfig, logger logging.Logger) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New(errors.ErrCodeValidation, "milvus address is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = config.DefaultMilvusTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	mc, err := milvusNewClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.DBName,
		DialOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                keepAliveTime,
				Timeout:             keepAliveTimeout,
				PermitWithoutStream: true,
			}),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to create milvus client").
			WithDetail(cfg.Address)
	}

	c := NewClientWithSDK(mc, logger)
	c.cfg = cfg
	if err := c.CheckHealth(ctx); err != nil {
		_ = mc.Close()
		return nil, ErrConnectionFailed.WithCause(err)
	}

	logger.Info("milvus client connected", logging.String("address", cfg.Address))
	return c, nil
}

// NewClientWithSDK wraps an existing SDK client.
func NewClientWithSDK(mc client.Client, logger logging.Logger) *Client {
	return &Client{mc: mc, logger: logger}
}

// CheckHealth asks the server for its state.
func (c *Client) CheckHealth(ctx context.Context) error {
	mc := c.SDK()
	if mc == nil {
		return ErrConnectionFailed
	}
	state, err := mc.CheckHealth(ctx)
	if err != nil || (state != nil && !state.IsHealthy) {
		c.healthy.Store(false)
		if err != nil {
			c.logger.Warn("milvus health check failed", logging.Err(err))
		}
		return ErrUnhealthy
	}
	c.healthy.Store(true)
	return nil
}

// IsHealthy returns the result of the last health check.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// SDK returns the underlying client.
func (c *Client) SDK() client.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mc
}

// Close releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mc == nil {
		return nil
	}
	err := c.mc.Close()
	c.mc = nil
	c.logger.Info("milvus client closed")
	return err
}
