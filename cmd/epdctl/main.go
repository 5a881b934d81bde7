package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"epdctl/internal/config"
	"epdctl/internal/convert"
	"epdctl/internal/epd"
	appLog "epdctl/internal/log"
	"epdctl/internal/scheduler"
	"epdctl/internal/web"
)

var black = color.RGBA{A: 0xFF}

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	pattern    bool
	clear      bool
	image      string
	text       string
	mode       string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("epdctl starting", "version", "0.1.0")

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"variant", conf.Controller.Variant,
		"width", conf.Controller.Width,
		"height", conf.Controller.Height,
		"mode", conf.Controller.Mode,
		"spi_port", conf.SPI.Port,
		"maintenance", conf.Maintenance,
		"listen", conf.Listen,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("epdctl failed", err)
		os.Exit(1)
	}
	appLog.Info("epdctl exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	opts, err := conf.DriverOptions()
	if err != nil {
		return err
	}
	initMode, err := conf.InitMode()
	if err != nil {
		return err
	}

	d, closePort, err := epd.Open(conf.HostConfig(), opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := closePort(); err != nil {
			appLog.Warn("failed to close SPI port", "err", err)
		}
	}()

	if err := d.Initialize(ctx, initMode); err != nil {
		return fmt.Errorf("initialize %s: %w", d, err)
	}
	appLog.Info("panel initialized", "panel", d.String(), "mode", initMode)

	mode := initMode
	if flags.mode != "" {
		if mode, err = epd.ParseRefreshMode(flags.mode); err != nil {
			return err
		}
	}

	if flags.once {
		err := runOnce(ctx, d, mode, flags)
		return sleepPanel(d, err)
	}
	return sleepPanel(d, serve(ctx, conf, d))
}

// runOnce performs a single draw and returns.
func runOnce(ctx context.Context, d *epd.Driver, mode epd.RefreshMode, flags flagConfig) error {
	g := d.Geometry()
	switch {
	case flags.clear:
		return d.Clear(ctx, mode)
	case flags.pattern:
		return d.Display(ctx, epd.TestPattern(g), mode)
	case flags.image != "":
		img, err := loadImage(flags.image)
		if err != nil {
			return err
		}
		buf := convert.PackImage1Bit(img, g.Width, g.Height)
		if mode.Depth() == epd.Depth2Bit {
			buf = convert.PackImageGray2(img, g.Width, g.Height)
		}
		return d.Display(ctx, buf, mode)
	case flags.text != "":
		c := epd.NewCanvas(ctx, d, mode)
		tinyfont.WriteLine(c, &proggy.TinySZ8pt7b, 4, 12, flags.text, black)
		return c.Display()
	default:
		return d.MaintenanceRefresh(ctx)
	}
}

// serve runs the maintenance schedule and the control API until ctx is done.
func serve(ctx context.Context, conf *config.Config, d *epd.Driver) error {
	sched := scheduler.New(nil)
	if err := sched.Add("maintenance", conf.Maintenance, d.MaintenanceRefresh); err != nil {
		return err
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sched.Stop(stopCtx); err != nil {
			appLog.Warn("scheduler did not stop cleanly", "err", err)
		}
	}()
	if next := sched.NextRun("maintenance", time.Now()); !next.IsZero() {
		appLog.Info("next maintenance refresh", "at", next.Format(time.RFC3339))
	}

	if conf.Listen == "" {
		<-ctx.Done()
		return nil
	}
	return web.NewServer(conf, d).Run(ctx, conf.Listen)
}

// sleepPanel puts the panel into deep sleep on the way out. A sleep failure
// is only reported when nothing else went wrong.
func sleepPanel(d *epd.Driver, runErr error) error {
	if d.State() == epd.StateSleeping {
		return runErr
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.Sleep(ctx); err != nil {
		appLog.Warn("failed to put panel to sleep", "err", err)
		if runErr == nil {
			return err
		}
	}
	return runErr
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/epdctl/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Draw once and exit instead of serving")
	flag.BoolVar(&cfg.pattern, "pattern", false, "With -once: show the stripe test pattern")
	flag.BoolVar(&cfg.clear, "clear", false, "With -once: clear the panel to white")
	flag.StringVar(&cfg.image, "image", "", "With -once: PNG or JPEG file to display")
	flag.StringVar(&cfg.text, "text", "", "With -once: line of text to display")
	flag.StringVar(&cfg.mode, "mode", "", "Refresh mode for -once (full_gray, full_1bit, partial, ultrafast)")

	flag.Parse()

	return cfg
}
