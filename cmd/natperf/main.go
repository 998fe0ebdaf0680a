package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/takehaya/natperf/pkg/natperf"
	_ "github.com/takehaya/natperf/pkg/profiles"
	"github.com/takehaya/natperf/pkg/provider"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

func main() {
	app := newApp(version)
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%+v", err)
	}
}

func newApp(version string) *cli.App {
	app := cli.NewApp()
	app.Name = "natperf"
	app.Version = fmt.Sprintf("%s, %s, %s, %s", version, commit, date, builtBy)

	app.Usage = "NAT stress traffic profile builder"

	app.EnableBashCompletion = true
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable debug logging",
		},
		cli.BoolFlag{
			Name:  "quiet, q",
			Usage: "log warnings and errors only",
		},
		cli.BoolFlag{
			Name:  "json-log",
			Usage: "log in JSON",
		},
		cli.BoolFlag{
			Name:  "no-color",
			Usage: "disable coloured log levels",
		},
	}

	profileFlags := []cli.Flag{
		cli.StringFlag{
			Name:  "profile, p",
			Value: "nat_10Ms",
			Usage: "traffic profile name, see the profiles command",
		},
		cli.IntFlag{
			Name:  "direction, d",
			Usage: "port direction, 0 or 1",
		},
		cli.StringSliceFlag{
			Name:  "opt, o",
			Usage: "profile option as key=value, may be repeated",
		},
		cli.StringFlag{
			Name:  "options-file",
			Usage: "YAML file with profile options; --opt takes precedence",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:   "profiles",
			Usage:  "list registered profiles",
			Action: listProfiles,
		},
		{
			Name:  "streams",
			Usage: "print the stream descriptors of a profile",
			Flags: append([]cli.Flag{
				cli.StringFlag{
					Name:  "format, f",
					Value: natperf.FormatJSON,
					Usage: "output format, json or yaml",
				},
			}, profileFlags...),
			Action: printStreams,
		},
		{
			Name:  "plan",
			Usage: "show how streams are spread over the possible CPUs",
			Flags: append([]cli.Flag{
				cli.IntFlag{
					Name:  "parallelism, P",
					Usage: "concurrent GetStreams calls, 0 for one per possible CPU",
				},
			}, profileFlags...),
			Action: printPlan,
		},
		{
			Name:  "simulate",
			Usage: "render packet instances with the reference interpreter and check them",
			Flags: append([]cli.Flag{
				cli.Uint64Flag{
					Name:  "count, c",
					Value: 1000,
					Usage: "packet instances per stream; distinct flow counting keeps at most 4,194,304 keys in memory",
				},
			}, profileFlags...),
			Action: simulate,
		},
	}
	return app
}

func listProfiles(c *cli.Context) error {
	for _, name := range provider.Names() {
		fmt.Fprintln(c.App.Writer, name)
	}
	return nil
}

func printStreams(c *cli.Context) error {
	return withNatperf(c, func(ctx context.Context, n *natperf.Natperf) error {
		return n.WriteDescriptors(ctx, c.App.Writer)
	})
}

func printPlan(c *cli.Context) error {
	return withNatperf(c, func(ctx context.Context, n *natperf.Natperf) error {
		plan, err := n.Plan(ctx)
		if err != nil {
			return err
		}
		plan.Print(c.App.Writer)
		return nil
	})
}

func simulate(c *cli.Context) error {
	return withNatperf(c, func(ctx context.Context, n *natperf.Natperf) error {
		stats, err := n.Simulate(ctx)
		if err != nil {
			return err
		}
		for _, st := range stats {
			st.Print(c.App.Writer)
		}
		return nil
	})
}

func withNatperf(c *cli.Context, fn func(context.Context, *natperf.Natperf) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	n, err := natperf.New(cfg)
	if err != nil {
		return err
	}
	defer n.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, n)
}

// loadConfig starts from the environment and applies the flags given on
// the command line.
func loadConfig(c *cli.Context) (natperf.Config, error) {
	cfg, err := natperf.LoadEnv()
	if err != nil {
		return natperf.Config{}, err
	}

	if c.GlobalBool("verbose") {
		cfg.LoggerConfig.Verbose = 1
	}
	if c.GlobalBool("quiet") {
		cfg.LoggerConfig.Quiet = true
	}
	if c.GlobalBool("json-log") {
		cfg.LoggerConfig.JSON = true
	}
	if c.GlobalBool("no-color") {
		cfg.LoggerConfig.NoColor = true
	}

	if c.IsSet("profile") || cfg.Profile == "" {
		cfg.Profile = c.String("profile")
	}
	if c.IsSet("direction") {
		cfg.Direction = c.Int("direction")
	}
	if c.IsSet("options-file") {
		cfg.OptionsFile = c.String("options-file")
	}
	if c.IsSet("format") {
		cfg.Format = c.String("format")
	}
	if c.IsSet("count") {
		cfg.Count = c.Uint64("count")
	}
	if c.IsSet("parallelism") {
		cfg.Parallelism = c.Int("parallelism")
	}

	opts, err := provider.ParseOptions(c.StringSlice("opt"))
	if err != nil {
		return natperf.Config{}, errors.Wrap(err, "invalid --opt")
	}
	cfg.Options = opts
	return cfg, nil
}
