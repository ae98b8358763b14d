// Command imxctl attaches to an IMX258 sensor over a register bridge (or
// the built-in simulator) and serves the control API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/davidplowman/imx258/internal/api"
	"github.com/davidplowman/imx258/internal/config"
	"github.com/davidplowman/imx258/internal/regbus"
	"github.com/davidplowman/imx258/internal/sensor"
	"github.com/davidplowman/imx258/internal/timeutil"
	"github.com/davidplowman/imx258/internal/trace"
	"github.com/davidplowman/imx258/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Run against the simulated register bus")
	listen      = flag.String("listen", ":8080", "Listen address")
	configPath  = flag.String("config", "", "Path to a JSON device config file")
	port        = flag.String("port", "", "Serial port (overrides the config)")
	traceDB     = flag.String("trace-db", "", "Trace database path (overrides the config)")
	label       = flag.String("label", "imxctl", "Label for the trace session")
	migrations  = flag.String("migrations", "db/migrations", "Path to the trace database migrations")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("imxctl %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg := config.EmptyDeviceConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadDeviceConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	tracePath := cfg.GetTraceDB()
	if *traceDB != "" {
		tracePath = *traceDB
	}

	if flag.Arg(0) == "migrate" {
		trace.RunMigrateCommand(flag.Args()[1:], tracePath, *migrations)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Register bus
	var bus regbus.Bus
	if *devMode || cfg.GetBus() == config.BusSim {
		log.Printf("using the simulated register bus")
		bus = regbus.NewSimBus()
	} else {
		serialPort := cfg.GetSerialPort()
		if *port != "" {
			serialPort = *port
		}
		// The device owns the bus from here: dev.Close releases it.
		sb, err := regbus.OpenSerialBus(serialPort, cfg.GetSerialBaud(), cfg.GetReadTimeout())
		if err != nil {
			log.Fatalf("Failed to open serial bridge: %v", err)
		}
		bus = sb
	}

	// Trace capture
	var store *trace.Store
	if cfg.GetTraceEnabled() {
		var err error
		store, err = trace.NewStore(tracePath)
		if err != nil {
			log.Fatalf("Failed to open trace database: %v", err)
		}
		defer store.Close()

		// Fresh databases get the inline schema; the version check only
		// matters once a database has adopted migrations.
		if v, dirty, err := store.MigrateVersion(*migrations); err == nil && (v > 0 || dirty) {
			if exit, err := store.CheckAndPromptMigrations(*migrations); exit {
				log.Fatalf("%v", err)
			}
		}

		id, err := store.BeginSession(*label)
		if err != nil {
			log.Fatalf("Failed to begin trace session: %v", err)
		}
		log.Printf("recording register trace to %s, session %s", tracePath, id)

		bus = regbus.NewTraceBus(bus, store, timeutil.RealClock{})
	}

	dev, err := sensor.New(ctx, bus, regbus.NopPower{}, timeutil.RealClock{}, sensor.Config{
		Lanes:         cfg.GetLanes(),
		LinkFreqsHz:   cfg.GetLinkFreqsHz(),
		XClkFreqHz:    cfg.GetXClkFreqHz(),
		LenientChipID: cfg.GetChipIDPolicy() == config.ChipIDLenient,
	})
	if err != nil {
		log.Fatalf("Failed to attach to sensor: %v", err)
	}

	var wg sync.WaitGroup

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(dev, store).ServeMux()
		if store != nil {
			if err := store.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach admin routes: %v", err)
			}
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("serving on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	// Stop streaming and power the sensor down before the bus goes away.
	if err := dev.Close(context.Background()); err != nil {
		log.Printf("sensor close error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
