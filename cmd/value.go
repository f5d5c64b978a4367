package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/valuation-console/internal/location"
	"github.com/sells-group/valuation-console/internal/session"
)

// valueFlags maps value command flags to property fields.
var valueFlags = []struct {
	flag  string
	field string
	usage string
}{
	{"rooms", "Rooms", "number of rooms"},
	{"distance", "Distance", "distance to the CBD in km"},
	{"bathrooms", "Bathroom", "number of bathrooms"},
	{"cars", "Car", "number of car spaces"},
	{"landsize", "Landsize", "land size in sqm"},
	{"building-area", "BuildingArea", "building area in sqm"},
	{"year-built", "YearBuilt", "year built"},
	{"region", "Regionname", "region name or index"},
}

var valueCmd = &cobra.Command{
	Use:         "value",
	Annotations: map[string]string{configModeAnnotation: "value"},
	Short:       "Value one property and exit",
	Long:        "Starts from the default property, applies the given flags and prints the valuation.",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cfg, "value", nil, session.WithNotifier(session.NotifierFunc(func(string, error) {})))
		if err != nil {
			return err
		}
		defer env.Close()

		asJSON, _ := cmd.Flags().GetBool("json")
		return runValue(cmd.Context(), env, cmd.Flags(), asJSON, os.Stdout)
	},
}

func init() {
	addValueFlags(valueCmd.Flags())
	rootCmd.AddCommand(valueCmd)
}

func addValueFlags(f *pflag.FlagSet) {
	for _, vf := range valueFlags {
		f.String(vf.flag, "", vf.usage)
	}
	f.Float64("lat", 0, "latitude, as if clicked on the map")
	f.Float64("lon", 0, "longitude, as if clicked on the map")
	f.Bool("json", false, "print the result as JSON")
}

// runValue applies flags to the model, submits once and prints the outcome.
func runValue(ctx context.Context, env *appEnv, flags *pflag.FlagSet, asJSON bool, out io.Writer) error {
	for _, vf := range valueFlags {
		if !flags.Changed(vf.flag) {
			continue
		}
		raw, _ := flags.GetString(vf.flag)
		if err := env.Model.SetField(vf.field, raw); err != nil {
			return eris.Wrapf(err, "--%s", vf.flag)
		}
	}

	if flags.Changed("lat") || flags.Changed("lon") {
		cur := env.Model.Snapshot()
		lat, lon := cur.Lattitude, cur.Longtitude
		if flags.Changed("lat") {
			lat, _ = flags.GetFloat64("lat")
		}
		if flags.Changed("lon") {
			lon, _ = flags.GetFloat64("lon")
		}
		if !location.ValidPoint(lat, lon) {
			return eris.Errorf("value: invalid location %v, %v", lat, lon)
		}
		env.Viewport.Click(lat, lon)
	}

	if !env.Session.Submit(ctx) {
		return eris.New("value: a valuation is already running")
	}
	st, err := env.Session.Wait(ctx)
	if err != nil {
		return eris.Wrap(err, "value: wait for valuation")
	}
	if st.Kind == session.Failed {
		return eris.Wrap(st.Err, session.AlertMessage)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Property any    `json:"property"`
			Result   any    `json:"result"`
			Price    string `json:"price"`
		}{
			Property: env.Session.Submitted(),
			Result:   st.Result,
			Price:    env.Renderer.Price(st.Result.PredictedPrice),
		})
	}

	env.Renderer.Form(out, env.Session.Submitted(), env.Model.Regions(), env.Sync.Geohash())
	env.Renderer.Result(out, st)
	fmt.Fprintln(out)
	return nil
}
