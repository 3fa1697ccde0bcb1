// traffic-overlay draws live ADS-B traffic around an ownship on a terminal
// scope, an inline radar, or browser map clients over a websocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/unklstewy/traffic-overlay/internal/logging"
	"github.com/unklstewy/traffic-overlay/internal/radar"
	"github.com/unklstewy/traffic-overlay/internal/scope"
	"github.com/unklstewy/traffic-overlay/internal/web"
	"github.com/unklstewy/traffic-overlay/pkg/config"
	"github.com/unklstewy/traffic-overlay/pkg/overlay"
)

// tuiLogFile is used by the terminal front ends when no log file is
// configured, so log lines do not land on the screen.
const tuiLogFile = "traffic-overlay.log"

func main() {
	app := &cli.App{
		Name:  "traffic-overlay",
		Usage: "draw live ADS-B traffic around an ownship",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "configs/config.json",
				Usage:   "path to a JSON or YAML configuration file",
				EnvVars: []string{config.EnvPrefix + "CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "simulate",
				Usage: "use the built-in traffic simulator instead of a live source",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level",
			},
			&cli.DurationFlag{
				Name:  "event-retention",
				Value: 30 * 24 * time.Hour,
				Usage: "how long the event log keeps events",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "scope",
				Usage:  "full-screen terminal traffic scope",
				Action: runScope,
			},
			{
				Name:   "radar",
				Usage:  "lightweight inline radar",
				Action: runRadar,
			},
			{
				Name:   "serve",
				Usage:  "serve markers and live updates to map clients",
				Action: runServe,
			},
			{
				Name:      "init-config",
				Usage:     "write a default configuration file",
				ArgsUsage: "[path]",
				Action:    runInitConfig,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func loadConfig(c *cli.Context, tui bool) (*config.Config, func(), error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if c.Bool("simulate") {
		cfg.ADSB.Simulate = true
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}
	if tui && cfg.Logging.File == "" {
		cfg.Logging.File = tuiLogFile
	}

	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, func() { closer.Close() }, nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func runScope(c *cli.Context) error {
	cfg, closeLog, err := loadConfig(c, true)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signalContext(c)
	defer cancel()

	var ui *scope.App
	announcer := overlay.NewPreemptingAnnouncer(func(ctx context.Context, text string) error {
		return ui.Speak(ctx, text)
	})
	defer announcer.Close()

	s, err := newStack(ctx, cfg, sinks{
		announcer: announcer,
		notifier:  overlay.NotifierFunc(func(n overlay.Notice) { ui.Notify(n) }),
	})
	if err != nil {
		return err
	}
	defer s.Close()

	ui = scope.New(scope.Options{
		Board:    s.board,
		Markers:  s.manager,
		Ownship:  cfg.Ownship.Position(),
		RadiusNM: cfg.ADSB.SearchRadiusNM,
	})
	return s.Run(ctx, c.Duration("event-retention"), ui.Run)
}

func runRadar(c *cli.Context) error {
	cfg, closeLog, err := loadConfig(c, true)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signalContext(c)
	defer cancel()

	var ui *radar.Radar
	announcer := overlay.NewPreemptingAnnouncer(func(ctx context.Context, text string) error {
		return ui.Speak(ctx, text)
	})
	defer announcer.Close()

	s, err := newStack(ctx, cfg, sinks{
		announcer: announcer,
		notifier:  overlay.NotifierFunc(func(n overlay.Notice) { ui.Notify(n) }),
	})
	if err != nil {
		return err
	}
	defer s.Close()

	ui = radar.New(radar.Options{
		Board:    s.board,
		Ownship:  cfg.Ownship.Position(),
		RadiusNM: cfg.ADSB.SearchRadiusNM,
	})
	return s.Run(ctx, c.Duration("event-retention"), ui.Run)
}

func runServe(c *cli.Context) error {
	cfg, closeLog, err := loadConfig(c, false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signalContext(c)
	defer cancel()

	hub := web.NewHub()
	s, err := newStack(ctx, cfg, sinks{announcer: hub, notifier: hub})
	if err != nil {
		return err
	}
	defer s.Close()
	s.board.OnChange(hub.OnOp)

	opts := web.Options{
		Config:  cfg.Server,
		Board:   s.board,
		Markers: s.manager,
		Hub:     hub,
		State:   s.manager.State,
	}
	if s.database != nil {
		opts.Events = s.eventLog()
		opts.Health = s.healthy
	}
	server := web.NewServer(opts)
	return s.Run(ctx, c.Duration("event-retention"), server.Run)
}

func runInitConfig(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		path = c.String("config")
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote default configuration to %s\n", path)
	return nil
}
