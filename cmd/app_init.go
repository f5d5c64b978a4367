package main

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-console/internal/config"
	"github.com/sells-group/valuation-console/internal/location"
	"github.com/sells-group/valuation-console/internal/maptile"
	"github.com/sells-group/valuation-console/internal/property"
	"github.com/sells-group/valuation-console/internal/render"
	"github.com/sells-group/valuation-console/internal/resilience"
	"github.com/sells-group/valuation-console/internal/session"
	"github.com/sells-group/valuation-console/pkg/valuation"
)

// appEnv holds the model, map binding and session shared by the
// console/serve/value commands.
type appEnv struct {
	Model    *property.Model
	Viewport *location.Viewport
	Sync     *location.Sync
	Client   valuation.Client
	Session  *session.Session
	Tiles    maptile.Template
	Renderer *render.Renderer

	attribution string
}

// Close detaches the map binding.
func (e *appEnv) Close() {
	if e.Sync != nil {
		e.Sync.Close()
	}
}

// MapView describes the viewport for rendering.
func (e *appEnv) MapView() render.MapView {
	clat, clon := e.Viewport.Center()
	mlat, mlon := e.Viewport.Marker()
	zoom := e.Viewport.Zoom()
	return render.MapView{
		CenterLat:   clat,
		CenterLon:   clon,
		MarkerLat:   mlat,
		MarkerLon:   mlon,
		Zoom:        zoom,
		TileURL:     e.Tiles.URL(maptile.TileFor(clat, clon, zoom)),
		Attribution: e.attribution,
	}
}

// initApp validates cfg for mode and builds the environment. A nil client
// means the HTTP valuation client described by cfg.
func initApp(c *config.Config, mode string, client valuation.Client, opts ...session.Option) (*appEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	tiles, err := maptile.ParseTemplate(c.Map.TileURL)
	if err != nil {
		return nil, eris.Wrap(err, "init map tiles")
	}

	if client == nil {
		client = initValuationClient(c)
	}

	model := property.New(c.Regions())
	seed := model.Snapshot()
	viewport := location.NewViewport(seed.Lattitude, seed.Longtitude, c.Map.Zoom)

	opts = append([]session.Option{
		session.WithTimeout(time.Duration(c.Valuation.TimeoutSecs) * time.Second),
	}, opts...)

	return &appEnv{
		Model:       model,
		Viewport:    viewport,
		Sync:        location.Bind(model, viewport),
		Client:      client,
		Session:     session.New(model, client, opts...),
		Tiles:       tiles,
		Renderer:    render.Default(),
		attribution: c.Map.Attribution,
	}, nil
}

func initValuationClient(c *config.Config) valuation.Client {
	opts := []valuation.Option{
		valuation.WithRateLimit(c.Valuation.RateLimitRPS),
		valuation.WithRetry(resilience.FromAttempts(c.Valuation.Retry.MaxAttempts)),
	}
	if c.Valuation.Circuit.FailureThreshold > 0 {
		cb := resilience.NewCircuitBreaker(resilience.FromCircuitConfig(
			c.Valuation.Circuit.FailureThreshold,
			c.Valuation.Circuit.ResetTimeoutSecs,
		))
		opts = append(opts, valuation.WithCircuitBreaker(cb))
	}
	return valuation.NewClient(c.Valuation.Endpoint, opts...)
}

// initTileProxy builds the backdrop tile proxy with its cache.
func initTileProxy(c *config.Config, tiles maptile.Template) *maptile.Proxy {
	var opts []maptile.ProxyOption
	if c.Map.CacheEntries > 0 {
		ttl := time.Duration(c.Map.CacheTTLMins) * time.Minute
		opts = append(opts, maptile.WithCache(maptile.NewCache(c.Map.CacheEntries, ttl)))
	}
	return maptile.NewProxy(tiles, opts...)
}
