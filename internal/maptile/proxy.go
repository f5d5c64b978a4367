package maptile

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// maxTileBytes guards against a misbehaving upstream.
const maxTileBytes = 4 << 20

// Proxy fetches backdrop tiles from an upstream tile server, with an
// optional cache in front.
type Proxy struct {
	template  Template
	userAgent string
	client    *http.Client
	cache     *Cache
}

// ProxyOption configures a Proxy.
type ProxyOption func(*Proxy)

// WithHTTPClient overrides the upstream HTTP client.
func WithHTTPClient(hc *http.Client) ProxyOption {
	return func(p *Proxy) {
		p.client = hc
	}
}

// WithCache puts c in front of the upstream.
func WithCache(c *Cache) ProxyOption {
	return func(p *Proxy) {
		p.cache = c
	}
}

// WithUserAgent sets the User-Agent sent upstream. OSM requires one.
func WithUserAgent(ua string) ProxyOption {
	return func(p *Proxy) {
		p.userAgent = ua
	}
}

// NewProxy creates a tile proxy for template.
func NewProxy(template Template, opts ...ProxyOption) *Proxy {
	p := &Proxy{
		template:  template,
		userAgent: "valuation-console/1.0",
		client:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Template returns the upstream URL template.
func (p *Proxy) Template() Template {
	return p.template
}

// Fetch returns the image bytes for tile from the cache or upstream.
func (p *Proxy) Fetch(ctx context.Context, tile Tile) ([]byte, error) {
	if !tile.Valid() {
		return nil, eris.Errorf("maptile: invalid tile %d/%d/%d", tile.Z, tile.X, tile.Y)
	}
	if p.cache != nil {
		if data := p.cache.Get(tile); data != nil {
			return data, nil
		}
	}

	url := p.template.URL(tile)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "maptile: create request")
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "maptile: fetch tile")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("maptile: upstream returned %d for %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return nil, eris.Wrap(err, "maptile: read tile body")
	}

	if p.cache != nil {
		p.cache.Put(tile, data)
	}
	zap.L().Debug("maptile: fetched tile", zap.String("url", url), zap.Int("bytes", len(data)))
	return data, nil
}

// ServeHTTP serves /{z}/{x}/{y}.png style paths. It reads chi URL params when
// mounted on a chi router and falls back to parsing the path otherwise.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tile, ok := tileFromRequest(r)
	if !ok {
		http.Error(w, "invalid tile path", http.StatusBadRequest)
		return
	}

	data, err := p.Fetch(r.Context(), tile)
	if err != nil {
		zap.L().Warn("maptile: fetch failed", zap.Error(err))
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", contentType(p.template.String()))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(data)
}

func tileFromRequest(r *http.Request) (Tile, bool) {
	z, x, y := chi.URLParam(r, "z"), chi.URLParam(r, "x"), chi.URLParam(r, "y")
	if z == "" || x == "" || y == "" {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 3 {
			return Tile{}, false
		}
		parts = parts[len(parts)-3:]
		z, x, y = parts[0], parts[1], parts[2]
	}
	if i := strings.IndexByte(y, '.'); i >= 0 {
		y = y[:i]
	}

	zi, err1 := strconv.Atoi(z)
	xi, err2 := strconv.Atoi(x)
	yi, err3 := strconv.Atoi(y)
	if err1 != nil || err2 != nil || err3 != nil {
		return Tile{}, false
	}
	t := Tile{Z: zi, X: xi, Y: yi}
	return t, t.Valid()
}

func contentType(template string) string {
	switch {
	case strings.HasSuffix(template, ".png"):
		return "image/png"
	case strings.HasSuffix(template, ".jpg"), strings.HasSuffix(template, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(template, ".webp"):
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
