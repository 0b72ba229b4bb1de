package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sitwell-data/posture.report/internal/api"
	"github.com/sitwell-data/posture.report/internal/config"
	"github.com/sitwell-data/posture.report/internal/db"
	"github.com/sitwell-data/posture.report/internal/feedmux"
	"github.com/sitwell-data/posture.report/internal/ingest"
	"github.com/sitwell-data/posture.report/internal/pipeline"
	"github.com/sitwell-data/posture.report/internal/posture"
	"github.com/sitwell-data/posture.report/internal/recorder"
	"github.com/sitwell-data/posture.report/internal/session"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode with a mock feed device")
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	serialPort = flag.String("serial-port", "", "Serial pose feed device (overrides the UDP listener)")
	baudRate   = flag.Int("baud", 921600, "Serial feed baud rate")
	udpPort    = flag.Int("udp-port", 9940, "UDP port to listen for pose frames")
	udpAddress = flag.String("udp-addr", "", "UDP bind address (default: listen on all interfaces)")
	rcvBuf     = flag.Int("rcvbuf", 1<<20, "UDP receive buffer size in bytes (default 1MB)")
	pcapFile   = flag.String("pcap-file", "", "Replay a PCAP capture of UDP pose traffic into the pipeline (requires pcap build tag)")
	pcapRate   = flag.Float64("pcap-rate", 1.0, "PCAP replay speed multiplier")
	dbFile     = flag.String("db", "posture_data.db", "Path to the SQLite database file")
	deviceID   = flag.String("device", "posture-pi", "Device ID stamped on sessions and clips")
	fixtures   = flag.String("fixtures", "fixtures.ndjson", "Pose frame fixture file replayed in dev mode")
	recordDir  = flag.String("record-dir", "", "Record the incoming frame stream as a clip under this directory")
	tuningPath = flag.String("tuning", "", "Tuning config JSON file (defaults apply when empty)")
	maxFPS     = flag.Float64("max-fps", 30, "Frame processing rate cap (0 disables the throttle)")
	debugLog   = flag.String("debug-log", "", "Pipeline debug log: 'stderr' or a file path (also POSTURE_DEBUG_LOG)")
	apiBase    = flag.String("api", "http://localhost:8080", "Daemon base URL used by the status and end-session subcommands")
)

// Main
func main() {
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		runSubcommand(args)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning := config.EmptyTuningConfig()
	if *tuningPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		log.Printf("Loaded tuning config from %s", *tuningPath)
	}

	if w := debugLogWriter(); w != nil {
		pipeline.SetLegacyLogger(w)
	}

	var feed feedmux.FeedMuxInterface
	useUDP := false
	switch {
	case *devMode:
		data, err := os.ReadFile(*fixtures)
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		feed = feedmux.NewMockFeedMux([]byte(lines[0] + "\n"))
	case *serialPort != "":
		var err error
		feed, err = feedmux.NewRealFeedMux(*serialPort, feedmux.PortOptions{BaudRate: *baudRate})
		if err != nil {
			log.Fatalf("failed to open feed port: %v", err)
		}
	case *pcapFile != "":
		// Replay drives the pipeline directly; the disabled mux keeps the
		// feed admin routes alive, same as UDP mode.
		feed = feedmux.NewDisabledFeedMux()
	default:
		// Frames arrive over UDP. The disabled mux keeps the feed admin
		// routes and command endpoint alive without a device attached.
		feed = feedmux.NewDisabledFeedMux()
		useUDP = true
	}
	defer feed.Close()

	if err := feed.Initialize(); err != nil {
		log.Fatalf("failed to initialize feed device: %v", err)
	}

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	classifier := posture.NewClassifier(tuning.ClassifierParams())
	stats := posture.NewFrameStats()

	sessions := session.NewManager(session.Config{
		DeviceID:    *deviceID,
		IdleTimeout: tuning.GetSessionIdleTimeout(),
		OnTransition: func(tr *session.Transition) {
			if err := store.RecordTransition(tr); err != nil {
				log.Printf("Failed to record transition: %v", err)
			}
		},
	}, nil, func(s *session.Session) {
		if err := store.InsertSession(s); err != nil {
			log.Printf("Failed to store session %s: %v", s.ID, err)
			return
		}
		log.Printf("Stored session %s: %d frames, %.0f%% aligned (%s)",
			s.ID, s.Frames, s.AlignedRatio*100, s.EndReason)
	})

	rollups := session.NewRollupCollector(tuning.GetRollupPeriod(), func(r *session.Rollup) {
		if err := store.InsertRollup(*deviceID, r); err != nil {
			log.Printf("Failed to store rollup: %v", err)
		}
	})

	var clip *recorder.Recorder
	if *recordDir != "" {
		name := fmt.Sprintf("capture_%s%s", time.Now().UTC().Format("20060102_150405"), recorder.FileExtension)
		clip, err = recorder.NewRecorder(filepath.Join(*recordDir, name), *deviceID)
		if err != nil {
			log.Fatalf("Failed to create clip recorder: %v", err)
		}
		switch {
		case useUDP:
			clip.SetSource("udp")
		case *pcapFile != "":
			clip.SetSource("pcap")
		default:
			clip.SetSource("live")
		}
		log.Printf("Recording frames to %s", clip.Path())
	}

	hub := api.NewHub(tuning.GetLiveSendBuffer())

	pipelineCfg := &pipeline.PipelineConfig{
		Classifier:   classifier,
		Stats:        stats,
		Sessions:     sessions,
		Rollups:      rollups,
		PublishFunc:  hub.Broadcast,
		MaxFrameRate: *maxFPS,
	}
	if clip != nil {
		pipelineCfg.Recorder = clip
	}
	frameCallback := pipelineCfg.NewFrameCallback()

	// Create a wait group for the HTTP server, feed, and ticker routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the feed port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feed.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor feed port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// subscribe to the feed frame lines and pass them to the pipeline
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := feed.Subscribe()
		defer feed.Unsubscribe(id)
		for {
			select {
			case payload := <-c:
				if err := feedmux.HandlePoseFrame(frameCallback, payload); err != nil {
					log.Printf("error handling frame: %v", err)
				}
			case <-ctx.Done():
				log.Printf("subscribe routine terminated")
				return
			}
		}
	}()

	if useUDP {
		listener := ingest.NewUDPListener(ingest.UDPListenerConfig{
			Address:         fmt.Sprintf("%s:%d", *udpAddress, *udpPort),
			RcvBuf:          *rcvBuf,
			ChannelCapacity: tuning.GetFrameChannelCapacity(),
			Stats:           stats,
			LogInterval:     tuning.GetStatsInterval(),
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("UDP listener error: %v", err)
			}
			log.Print("UDP listener routine terminated")
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case line := <-listener.Frames():
					frameCallback(line)
				case <-ctx.Done():
					log.Print("UDP frame routine terminated")
					return
				}
			}
		}()
	} else {
		if *pcapFile != "" {
			wg.Add(1)
			go func() {
				defer wg.Done()
				replayCfg := ingest.ReplayConfig{SpeedMultiplier: *pcapRate}
				if err := ingest.ReplayPCAPFile(ctx, *pcapFile, *udpPort, replayCfg, stats, frameCallback); err != nil && err != context.Canceled {
					log.Printf("PCAP replay failed: %v", err)
				}
				log.Print("PCAP replay routine terminated")
			}()
		}

		// Serial, dev, and replay feeds have no listener of their own
		// logging ingest statistics, so run the ticker here.
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(tuning.GetStatsInterval())
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					stats.LogStats()
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// idle sweep closes the session when the chair empties
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sessions.CheckIdle()
			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		// create a new API server instance and mount the API handlers
		mux := api.NewServer(api.Config{
			Classifier: classifier,
			Stats:      stats,
			Sessions:   sessions,
			Store:      store,
			Hub:        hub,
			DeviceID:   *deviceID,
		}).ServeMux()

		feed.AttachAdminRoutes(mux)
		store.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Serving posture API on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a shorter timeout
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

	// Wait for all goroutines to finish
	wg.Wait()

	// The pipeline has stopped feeding; settle the active session and
	// flush partial state before the store closes.
	hub.Close()
	if sessions.End(session.EndReasonShutdown) {
		log.Print("Ended active session on shutdown")
	}
	rollups.Flush()
	if clip != nil {
		if err := clip.Close(); err != nil {
			log.Printf("Failed to close clip: %v", err)
		} else {
			log.Printf("Recorded %d frames to %s", clip.FrameCount(), clip.Path())
		}
	}

	log.Printf("Graceful shutdown complete")
}

// runSubcommand handles the management commands that operate on the
// database file or talk to a running daemon instead of starting one.
func runSubcommand(args []string) {
	switch args[0] {
	case "migrate":
		db.RunMigrateCommand(args[1:], *dbFile)
	case "status":
		if err := printStatus(os.Stdout, api.NewClient(*apiBase, nil)); err != nil {
			log.Fatalf("status: %v", err)
		}
	case "end-session":
		if err := api.NewClient(*apiBase, nil).EndSession(); err != nil {
			log.Fatalf("end-session: %v", err)
		}
		fmt.Println("Active session ended")
	default:
		fmt.Printf("Unknown command: %s\n\n", args[0])
		fmt.Println("Commands:")
		fmt.Println("  migrate      Manage the database schema (see 'migrate help')")
		fmt.Println("  status       Show daemon health, verdict, and recent sessions")
		fmt.Println("  end-session  Close the active monitoring session now")
		os.Exit(1)
	}
}

// printStatus renders the daemon's health, current verdict, feed
// statistics, and most recent sessions for the terminal.
func printStatus(w io.Writer, client *api.Client) error {
	health, err := client.Health()
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", client.BaseURL, err)
	}
	fmt.Fprintf(w, "daemon    %s (version %s, device %s)\n", health.Status, health.Version, health.Device)

	verdict, err := client.Verdict()
	if err != nil {
		return err
	}
	if verdict.Valid {
		fmt.Fprintf(w, "verdict   %s (aligned=%v, frame %d)\n", verdict.Color, verdict.Aligned, verdict.FrameSeq)
	} else {
		fmt.Fprintln(w, "verdict   none yet")
	}

	stats, err := client.Stats()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "feed      %d fps, %d frames / %d errors / %d dropped in the last %.0fs\n",
		stats.FPS, stats.Frames, stats.Errors, stats.Dropped, stats.WindowSeconds)
	if stats.LiveClients > 0 {
		fmt.Fprintf(w, "live      %d viewers connected, %d messages dropped\n", stats.LiveClients, stats.LiveDropped)
	}

	sessions, err := client.Sessions(3)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "sessions  none stored")
		return nil
	}
	fmt.Fprintln(w, "sessions  most recent:")
	for _, s := range sessions {
		dur := time.Duration(s.EndNs - s.StartNs)
		fmt.Fprintf(w, "  %-24s %5.1f%% aligned over %-8s (%s)\n",
			s.ID, s.AlignedRatio*100, dur.Round(time.Second), s.EndReason)
	}
	return nil
}

// debugLogWriter resolves the -debug-log flag (or the POSTURE_DEBUG_LOG
// environment variable) to a writer for the pipeline debug streams.
func debugLogWriter() io.Writer {
	dest := *debugLog
	if dest == "" {
		dest = os.Getenv("POSTURE_DEBUG_LOG")
	}
	switch dest {
	case "":
		return nil
	case "stderr":
		return os.Stderr
	case "stdout":
		return os.Stdout
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatalf("Failed to open debug log %s: %v", dest, err)
	}
	return f
}
