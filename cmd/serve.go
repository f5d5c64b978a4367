package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/valuation-console/internal/location"
	"github.com/sells-group/valuation-console/internal/property"
	"github.com/sells-group/valuation-console/internal/render"
	"github.com/sells-group/valuation-console/internal/session"
	"github.com/sells-group/valuation-console/pkg/valuation"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:         "serve",
	Annotations: map[string]string{configModeAnnotation: "serve"},
	Short:       "Serve the valuation session over HTTP",
	Long:        "Exposes the property form, map and valuation session as a JSON API with a tile proxy for the map backdrop.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(cfg, "serve", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env, initTileProxy(cfg, env.Tiles), cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the HTTP API over env. tiles serves backdrop images.
func newRouter(env *appEnv, tiles http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	h := &apiHandler{env: env}
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/property", h.getProperty)
		r.Patch("/property", h.patchProperty)
		r.Get("/map", h.getMap)
		r.Post("/map/click", h.clickMap)
		r.Get("/valuation", h.getValuation)
		r.Post("/valuation", h.postValuation)
	})
	if tiles != nil {
		r.Method(http.MethodGet, "/tiles/{z}/{x}/{y}", tiles)
	}
	return r
}

type apiHandler struct {
	env *appEnv
}

type propertyResponse struct {
	Property property.Description  `json:"property"`
	Geohash  string                `json:"geohash"`
	Regions  []property.RegionInfo `json:"regions"`
}

type mapResponse struct {
	Center      [2]float64 `json:"center"`
	Marker      [2]float64 `json:"marker"`
	Zoom        int        `json:"zoom"`
	TileURL     string     `json:"tile_url"`
	Attribution string     `json:"attribution"`
}

type valuationResponse struct {
	State     string                `json:"state"`
	Result    *valuation.Result     `json:"result,omitempty"`
	Price     string                `json:"price,omitempty"`
	Cluster   string                `json:"cluster,omitempty"`
	Error     string                `json:"error,omitempty"`
	Submitted *property.Description `json:"submitted,omitempty"`
}

func (h *apiHandler) propertyResponse() propertyResponse {
	return propertyResponse{
		Property: h.env.Model.Snapshot(),
		Geohash:  h.env.Sync.Geohash(),
		Regions:  h.env.Model.Regions().All(),
	}
}

func (h *apiHandler) mapResponse() mapResponse {
	v := h.env.MapView()
	return mapResponse{
		Center:      [2]float64{v.CenterLat, v.CenterLon},
		Marker:      [2]float64{v.MarkerLat, v.MarkerLon},
		Zoom:        v.Zoom,
		TileURL:     v.TileURL,
		Attribution: v.Attribution,
	}
}

func (h *apiHandler) valuationResponse(st session.State) valuationResponse {
	resp := valuationResponse{State: st.Kind.String()}
	if st.Kind != session.Idle {
		sub := h.env.Session.Submitted()
		resp.Submitted = &sub
	}
	if st.HasResult() {
		resp.Result = st.Result
		resp.Price = h.env.Renderer.Price(st.Result.PredictedPrice)
		resp.Cluster = render.Cluster(st.Result.ClusterID)
	}
	if st.Err != nil {
		resp.Error = session.AlertMessage
	}
	return resp
}

func (h *apiHandler) getProperty(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.propertyResponse())
}

func (h *apiHandler) patchProperty(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field string          `json:"field"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Field == "" || len(req.Value) == 0 {
		writeError(w, http.StatusBadRequest, "field and value are required")
		return
	}

	if err := h.env.Model.SetField(req.Field, rawValue(req.Value)); err != nil {
		switch {
		case errors.Is(err, property.ErrUnknownField):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, property.ErrReadOnlyField):
			writeError(w, http.StatusForbidden, err.Error())
		default:
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, h.propertyResponse())
}

func (h *apiHandler) getMap(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.mapResponse())
}

func (h *apiHandler) clickMap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lat *float64 `json:"lat"`
		Lon *float64 `json:"lon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Lat == nil || req.Lon == nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}

	h.env.Viewport.Click(*req.Lat, *req.Lon)
	writeJSON(w, http.StatusOK, struct {
		Accepted bool             `json:"accepted"`
		Map      mapResponse      `json:"map"`
		Property propertyResponse `json:"property"`
	}{
		Accepted: location.ValidPoint(*req.Lat, *req.Lon),
		Map:      h.mapResponse(),
		Property: h.propertyResponse(),
	})
}

func (h *apiHandler) getValuation(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.valuationResponse(h.env.Session.State()))
}

func (h *apiHandler) postValuation(w http.ResponseWriter, r *http.Request) {
	if !h.env.Session.Submit(r.Context()) {
		writeError(w, http.StatusConflict, "a valuation is already running")
		return
	}
	writeJSON(w, http.StatusAccepted, h.valuationResponse(h.env.Session.State()))
}

// rawValue turns a JSON string or literal into the text SetField parses.
func rawValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("serve: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
