// Command arlabel runs the object labelling pipeline against a simulated AR
// session: frames go through a detector into the candidate selector, and taps
// posted to the HTTP API place named anchors at the detected objects.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/arlabel/internal/anchor"
	"github.com/banshee-data/arlabel/internal/api"
	"github.com/banshee-data/arlabel/internal/arsession"
	"github.com/banshee-data/arlabel/internal/config"
	"github.com/banshee-data/arlabel/internal/db"
	"github.com/banshee-data/arlabel/internal/detect"
	"github.com/banshee-data/arlabel/internal/detect/remote"
	"github.com/banshee-data/arlabel/internal/labeldisplay"
	"github.com/banshee-data/arlabel/internal/monitoring"
	"github.com/banshee-data/arlabel/internal/render"
	"github.com/banshee-data/arlabel/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	configPath = flag.String("config", config.DefaultConfigPath, "Pipeline configuration file (.json); empty uses built-in defaults")
	envFile    = flag.String("env", ".env", "Optional dotenv file with ARLABEL_* overrides")
	scenePath  = flag.String("scene", "", "Scene file (.json); empty uses the built-in feature grid")
	replayPath = flag.String("replay", "", "Replay detections from a JSON-lines file instead of a detector server")
	dbPath     = flag.String("db", "", "Journal database path (overrides journal_path; \"none\" disables the journal)")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

func loadConfig() (*config.PipelineConfig, error) {
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := config.EmptyPipelineConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadPipelineConfig(*configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadScene() (arsession.Scene, error) {
	if *scenePath == "" {
		return arsession.DefaultScene(), nil
	}
	return arsession.LoadScene(*scenePath)
}

// newDetector returns the detector frames are submitted to, or nil when
// detections only arrive through the HTTP ingress.
func newDetector(cfg *config.PipelineConfig) (detect.Detector, func(), error) {
	if *replayPath != "" {
		d, err := detect.LoadReplay(*replayPath)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("replaying %d frames of detections from %s", d.Len(), *replayPath)
		return d, func() {}, nil
	}
	if url := cfg.GetDetectorURL(); url != "" {
		d, err := remote.New(remote.Options{
			URL:            url,
			ReconnectDelay: cfg.GetDetectorReconnectDelay(),
		})
		if err != nil {
			return nil, nil, err
		}
		log.Printf("using detector server %s", url)
		return d, func() {
			if err := d.Close(); err != nil {
				log.Printf("failed to close detector connection: %v", err)
			}
		}, nil
	}
	return nil, func() {}, nil
}

func journalPath(cfg *config.PipelineConfig) string {
	if *dbPath != "" {
		if *dbPath == config.JournalDisabled {
			return ""
		}
		return *dbPath
	}
	return cfg.GetJournalPath()
}

func main() {
	flag.Parse()
	monitoring.SetVerbose(*verbose)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	log.Printf("arlabel %s", version.Get())

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	scene, err := loadScene()
	if err != nil {
		log.Fatalf("failed to load scene: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nodes := render.NewScene()
	ccfg := anchor.ControllerConfigFromPipeline(cfg)
	sim, err := arsession.NewSimulator(scene, arsession.SimulatorOptions{
		Viewport:      ccfg.Viewport,
		Orientation:   ccfg.Orientation,
		OnAnchorAdded: nodes.AnchorAdded,
	})
	if err != nil {
		log.Fatalf("failed to create AR session: %v", err)
	}

	board := labeldisplay.NewBoard(nil)
	defer board.Close()
	selector := detect.NewSelector(detect.SelectorConfigFromPipeline(cfg), board, nil)
	controller := anchor.NewController(ccfg, sim, selector, nil)

	var journal *db.Journal
	if path := journalPath(cfg); path != "" {
		database, err := db.NewDB(path)
		if err != nil {
			log.Fatalf("failed to open journal database: %v", err)
		}
		defer database.Close()
		journal = db.NewJournal(database, nil)
		sessionID, err := journal.StartSession(ctx)
		if err != nil {
			log.Fatalf("failed to start journal session: %v", err)
		}
		log.Printf("journaling placements to %s (session %s)", path, sessionID)
		defer func() {
			if err := journal.EndSession(context.Background()); err != nil {
				log.Printf("failed to end journal session: %v", err)
			}
		}()
		controller.SetRecorder(journal)
	}

	detector, closeDetector, err := newDetector(cfg)
	if err != nil {
		log.Fatalf("failed to create detector: %v", err)
	}
	defer closeDetector()

	var runner *detect.Runner
	if detector != nil {
		runner = detect.NewRunner(detector, selector, cfg.GetInferenceTimeout())
	} else {
		log.Print("no detector configured; waiting for detections on /api/detections")
	}

	var wg sync.WaitGroup

	// frame loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sim.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("AR session stopped: %v", err)
		}
		log.Print("frame loop terminated")
	}()

	// detection routine
	if runner != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runner.Run(ctx, sim.Frames()); err != nil && err != context.Canceled {
				log.Printf("detection runner stopped: %v", err)
			}
			log.Print("detection routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := api.NewServer(api.Options{
			Controller: controller,
			Selector:   selector,
			Session:    sim,
			Runner:     runner,
			Board:      board,
			Nodes:      nodes,
			Context:    ctx,
		})
		mux := server.ServeMux()
		server.AttachAdminRoutes(mux)
		board.AttachAdminRoutes(mux)
		if journal != nil {
			if err := journal.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach journal admin routes: %v", err)
			}
		}

		srv := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Close the label streams first so Shutdown does not wait on them.
		board.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := srv.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
