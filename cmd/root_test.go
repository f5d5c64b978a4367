package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valuation-console/internal/property"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"console", "serve", "value", "config"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "valuation-console", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestValueCommand_Flags(t *testing.T) {
	for _, name := range []string{"rooms", "distance", "bathrooms", "cars", "landsize", "building-area", "year-built", "lat", "lon", "region", "json"} {
		assert.NotNil(t, valueCmd.Flags().Lookup(name), "value should have --%s flag", name)
	}
}

func TestInitApp_RejectsInvalidConfig(t *testing.T) {
	c := testConfig()
	c.Valuation.Endpoint = ""

	_, err := initApp(c, "console", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valuation.endpoint")
}

func TestInitApp_CentresMapOnSeed(t *testing.T) {
	env := testApp(t, "console", clientFunc(nil))

	lat, lon := env.Viewport.Center()
	assert.Equal(t, -37.81, lat)
	assert.Equal(t, 144.96, lon)

	v := env.MapView()
	assert.Equal(t, 12, v.Zoom)
	assert.Equal(t, "https://a.tile.openstreetmap.org/12/3697/2513.png", v.TileURL)
	assert.Equal(t, "OpenStreetMap", v.Attribution)
	assert.Equal(t, "r1r0fsu", env.Sync.Geohash())
}

func TestInitValuationClient_NoBreakerByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 6 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"predicted_price": 850000, "tier": "Premium", "cluster_id": 3}`))
	}))
	defer srv.Close()

	c := testConfig()
	c.Valuation.Endpoint = srv.URL
	client := initValuationClient(c)

	for i := 0; i < 6; i++ {
		_, err := client.Predict(context.Background(), property.Seed())
		require.Error(t, err)
	}
	res, err := client.Predict(context.Background(), property.Seed())
	require.NoError(t, err)
	assert.Equal(t, 3, res.ClusterID)
	assert.EqualValues(t, 7, calls.Load(), "every submit reaches the service")
}

func TestCommands_DeclareConfigMode(t *testing.T) {
	assert.Equal(t, "console", consoleCmd.Annotations[configModeAnnotation])
	assert.Equal(t, "serve", serveCmd.Annotations[configModeAnnotation])
	assert.Equal(t, "value", valueCmd.Annotations[configModeAnnotation])
	assert.NotContains(t, configCmd.Annotations, configModeAnnotation)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
}

func TestValidateFor(t *testing.T) {
	bad := testConfig()
	bad.Server.Port = 0

	assert.NoError(t, validateFor(consoleCmd, bad), "console ignores the server port")
	assert.NoError(t, validateFor(configCmd, bad), "config prints whatever is loaded")

	err := validateFor(serveCmd, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serve")
	assert.Contains(t, err.Error(), "server.port")
}
