package main

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/valuation-console/internal/config"
	"github.com/sells-group/valuation-console/internal/maptile"
	"github.com/sells-group/valuation-console/internal/property"
	"github.com/sells-group/valuation-console/pkg/valuation"
)

// clientFunc adapts a function to valuation.Client.
type clientFunc func(ctx context.Context, desc property.Description) (*valuation.Result, error)

func (f clientFunc) Predict(ctx context.Context, desc property.Description) (*valuation.Result, error) {
	return f(ctx, desc)
}

func premiumResult() *valuation.Result {
	return &valuation.Result{PredictedPrice: 850000, Tier: "Premium", ClusterID: 3}
}

// recordingClient returns res and remembers every description it was sent.
type recordingClient struct {
	mu    sync.Mutex
	sent  []property.Description
	res   *valuation.Result
	err   error
	block chan struct{}
}

func (c *recordingClient) Predict(ctx context.Context, desc property.Description) (*valuation.Result, error) {
	c.mu.Lock()
	c.sent = append(c.sent, desc)
	c.mu.Unlock()

	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return c.res, c.err
}

func (c *recordingClient) calls() []property.Description {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]property.Description(nil), c.sent...)
}

// syncBuffer is a bytes.Buffer safe to read while the console writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() *config.Config {
	return &config.Config{
		Valuation: config.ValuationConfig{
			Endpoint:    "http://127.0.0.1:10000/predict",
			TimeoutSecs: 5,
		},
		Map: config.MapConfig{
			TileURL:     maptile.DefaultTemplate,
			Attribution: "OpenStreetMap",
			Zoom:        12,
		},
		Server: config.ServerConfig{Port: 8080},
		Log:    config.LogConfig{Level: "error", Format: "json"},
	}
}

func testApp(t *testing.T, mode string, client valuation.Client) *appEnv {
	t.Helper()
	env, err := initApp(testConfig(), mode, client)
	require.NoError(t, err)
	t.Cleanup(env.Close)
	return env
}
