package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-console/internal/config"
	"github.com/sells-group/valuation-console/internal/maptile"
	"github.com/sells-group/valuation-console/internal/property"
	"github.com/sells-group/valuation-console/internal/render"
	"github.com/sells-group/valuation-console/internal/session"
	"github.com/sells-group/valuation-console/pkg/valuation"
)

var consoleCmd = &cobra.Command{
	Use:         "console",
	Annotations: map[string]string{configModeAnnotation: "console"},
	Short:       "Start an interactive valuation session",
	Long:        "Reads commands from stdin: edit the property, click the map, submit for valuation.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		con, err := newConsole(cfg, nil, os.Stdout)
		if err != nil {
			return err
		}
		defer con.Close()

		return con.Run(ctx, os.Stdin)
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

const consoleHelp = `Commands:
  set <field> <value>   edit a field (rooms, distance, baths, cars, land, build, year, region)
  click <lat> <lon>     click the map at a point
  zoom <level>          change the map zoom
  submit                request a valuation
  show                  show the property and valuation status
  map                   show the map viewport
  regions               list selectable regions
  reset                 restore the starting property
  help                  show this help
  quit                  leave the console`

// console runs the interactive session. Every state change happens on the
// goroutine running Run: input lines and request completions are both
// delivered to it over channels.
type console struct {
	env    *appEnv
	out    io.Writer
	events chan func()
	quit   chan struct{}
}

// newConsole builds a console over cfg writing to out. A nil client means the
// configured HTTP client.
func newConsole(c *config.Config, client valuation.Client, out io.Writer) (*console, error) {
	con := &console{
		out:    out,
		events: make(chan func(), 1),
		quit:   make(chan struct{}),
	}

	env, err := initApp(c, "console", client,
		session.WithDispatcher(con.dispatch),
		session.WithNotifier(session.NotifierFunc(func(msg string, _ error) {
			fmt.Fprintf(out, "!! %s\n", msg)
		})),
	)
	if err != nil {
		return nil, err
	}
	con.env = env

	env.Session.Subscribe(func(st session.State) {
		env.Renderer.Status(out, st)
	})
	return con, nil
}

// dispatch hands a completion to the loop. After the loop is gone the
// completion is discarded.
func (c *console) dispatch(fn func()) {
	select {
	case c.events <- fn:
	case <-c.quit:
	}
}

// Close stops accepting completions and detaches the map.
func (c *console) Close() {
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
	c.env.Close()
}

// Run processes commands from in until quit, end of input or ctx is done.
// At end of input it waits for an in-flight request to finish first.
func (c *console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-c.quit:
				return
			}
		}
	}()

	c.show()
	c.prompt()

	for {
		select {
		case <-ctx.Done():
			return nil

		case fn := <-c.events:
			fn()
			if lines == nil && !c.env.Session.State().Busy() {
				return nil
			}

		case line, ok := <-lines:
			if !ok {
				lines = nil
				if !c.env.Session.State().Busy() {
					return nil
				}
				continue
			}
			if !c.exec(ctx, line) {
				return nil
			}
			c.prompt()
		}
	}
}

func (c *console) prompt() {
	fmt.Fprint(c.out, "> ")
}

// exec runs one command line. It returns false when the user quits.
func (c *console) exec(ctx context.Context, line string) bool {
	args := strings.Fields(line)
	if len(args) == 0 {
		return true
	}

	switch strings.ToLower(args[0]) {
	case "set":
		if len(args) < 3 {
			fmt.Fprintln(c.out, "usage: set <field> <value>")
			return true
		}
		if err := c.env.Model.SetField(args[1], strings.Join(args[2:], " ")); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			return true
		}
		f, _ := property.LookupField(args[1])
		fmt.Fprintf(c.out, "%s = %s\n", f, c.env.Model.Snapshot().Value(f))

	case "click":
		if len(args) != 3 {
			fmt.Fprintln(c.out, "usage: click <lat> <lon>")
			return true
		}
		lat, err1 := strconv.ParseFloat(args[1], 64)
		lon, err2 := strconv.ParseFloat(args[2], 64)
		if err1 != nil || err2 != nil {
			fmt.Fprintln(c.out, "usage: click <lat> <lon>")
			return true
		}
		c.env.Viewport.Click(lat, lon)
		render.Map(c.out, c.env.MapView())

	case "zoom":
		if len(args) != 2 {
			fmt.Fprintln(c.out, "usage: zoom <level>")
			return true
		}
		z, err := strconv.Atoi(args[1])
		if err != nil || z < 1 || z > maptile.MaxZoom {
			fmt.Fprintf(c.out, "error: zoom must be between 1 and %d\n", maptile.MaxZoom)
			return true
		}
		c.env.Viewport.SetZoom(z)
		render.Map(c.out, c.env.MapView())

	case "submit":
		if !c.env.Session.Submit(ctx) {
			fmt.Fprintln(c.out, "a valuation is already running")
		}

	case "show":
		c.show()

	case "map":
		render.Map(c.out, c.env.MapView())

	case "regions":
		render.Regions(c.out, c.env.Model.Regions())

	case "reset":
		c.env.Model.Reset()
		c.show()

	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)

	case "quit", "exit":
		return false

	default:
		zap.L().Debug("console: unknown command", zap.String("line", line))
		fmt.Fprintf(c.out, "unknown command %q (try help)\n", args[0])
	}
	return true
}

func (c *console) show() {
	c.env.Renderer.Form(c.out, c.env.Model.Snapshot(), c.env.Model.Regions(), c.env.Sync.Geohash())
	c.env.Renderer.Status(c.out, c.env.Session.State())
}
