// Command clips records, inspects, replays, and exports pose-frame clips.
package main

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sitwell-data/posture.report/internal/ingest"
	"github.com/sitwell-data/posture.report/internal/recorder"
	"github.com/sitwell-data/posture.report/internal/security"
	"github.com/sitwell-data/posture.report/internal/timeutil"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "record":
		handleRecord(args)
	case "play":
		handlePlay(args)
	case "info":
		handleInfo(args)
	case "export":
		handleExport(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`clips - Pose frame clip recorder and player

Usage: clips <command> [options]

Commands:
  record     Record a UDP pose feed into a .pslog clip
  play       Replay a clip to a UDP destination with recorded timing
  info       Print a clip's header and index summary
  export     Flatten a clip into a single .tar.gz bundle for sharing
  help       Show this help message

Examples:
  # Record the feed on the default port until interrupted
  clips record -o desk.pslog

  # Replay a clip into a local daemon at double speed
  clips play -to 127.0.0.1:9940 -rate 2 desk.pslog

  # Start replay two minutes into the clip
  clips play -seek-ts 2m desk.pslog

  # Inspect a clip
  clips info desk.pslog

  # Bundle a clip for file transfer
  clips export -o desk.tar.gz desk.pslog`)
}

func handleRecord(args []string) {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	output := fs.String("o", "", "Output clip path (default: timestamped .pslog in the temp directory)")
	udpPort := fs.Int("udp-port", 9940, "UDP port to listen for pose frames")
	udpAddress := fs.String("udp-addr", "", "UDP bind address (default: listen on all interfaces)")
	rcvBuf := fs.Int("rcvbuf", 1<<20, "UDP receive buffer size in bytes")
	device := fs.String("device", "clips", "Device ID stamped on the clip header")
	fs.Parse(args)

	rec, err := recorder.NewRecorder(*output, *device)
	if err != nil {
		log.Fatalf("Failed to create clip: %v", err)
	}
	rec.SetSource("udp")

	listener := ingest.NewUDPListener(ingest.UDPListenerConfig{
		Address: fmt.Sprintf("%s:%d", *udpAddress, *udpPort),
		RcvBuf:  *rcvBuf,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := listener.Start(ctx); err != nil && err != context.Canceled {
			log.Fatalf("UDP listener error: %v", err)
		}
	}()

	log.Printf("Recording to %s (Ctrl-C to stop)", rec.Path())
	for {
		select {
		case line := <-listener.Frames():
			if err := rec.RecordLine(line); err != nil {
				log.Printf("Failed to record frame: %v", err)
			}
		case <-ctx.Done():
			if err := rec.Close(); err != nil {
				log.Fatalf("Failed to finalise clip: %v", err)
			}
			log.Printf("✓ Recorded %d frames to %s", rec.FrameCount(), rec.Path())
			return
		}
	}
}

func handlePlay(args []string) {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	to := fs.String("to", "127.0.0.1:9940", "UDP destination for replayed frames")
	rate := fs.Float64("rate", 1.0, "Playback rate multiplier")
	seekFrame := fs.Uint64("seek-frame", 0, "Start playback at this frame index")
	seekTs := fs.Duration("seek-ts", 0, "Start playback this far into the clip")
	maxFPS := fs.Float64("max-fps", 120, "Delivery rate cap (0 disables)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		log.Fatal("Usage: clips play [options] <clip.pslog>")
	}

	rep, err := recorder.NewReplayer(fs.Arg(0))
	if err != nil {
		log.Fatalf("Failed to open clip: %v", err)
	}
	defer rep.Close()

	if *seekFrame > 0 && *seekTs > 0 {
		log.Fatal("Use either -seek-frame or -seek-ts, not both")
	}
	if *seekFrame > 0 {
		if err := rep.Seek(*seekFrame); err != nil {
			log.Fatalf("Seek failed: %v", err)
		}
	}
	if *seekTs > 0 {
		if err := rep.SeekToTimestamp(rep.Header().StartNs + seekTs.Nanoseconds()); err != nil {
			log.Fatalf("Seek failed: %v", err)
		}
	}
	rep.SetRate(float32(*rate))

	conn, err := net.Dial("udp", *to)
	if err != nil {
		log.Fatalf("Failed to dial %s: %v", *to, err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sent := 0
	start := time.Now()
	err = recorder.ReplayLoop(ctx, rep, timeutil.RealClock{}, *maxFPS, func(line []byte) {
		if _, err := conn.Write(line); err != nil {
			log.Printf("UDP send failed: %v", err)
			return
		}
		sent++
	})
	if err != nil && err != context.Canceled {
		log.Fatalf("Replay failed: %v", err)
	}
	log.Printf("✓ Sent %d/%d frames to %s in %s",
		sent, rep.TotalFrames(), *to, time.Since(start).Round(time.Millisecond))
}

func handleInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() != 1 {
		log.Fatal("Usage: clips info <clip.pslog>")
	}

	rep, err := recorder.NewReplayer(fs.Arg(0))
	if err != nil {
		log.Fatalf("Failed to open clip: %v", err)
	}
	defer rep.Close()

	printClipInfo(os.Stdout, fs.Arg(0), rep)
}

// printClipInfo renders the header and index summary for the terminal.
func printClipInfo(w io.Writer, path string, rep *recorder.Replayer) {
	h := rep.Header()
	fmt.Fprintf(w, "clip      %s\n", path)
	fmt.Fprintf(w, "version   %s\n", h.Version)
	fmt.Fprintf(w, "device    %s\n", h.DeviceID)
	fmt.Fprintf(w, "source    %s\n", h.Capture.Source)
	fmt.Fprintf(w, "tensor    %dx%d\n", h.Capture.TensorW, h.Capture.TensorH)
	fmt.Fprintf(w, "created   %s\n", time.Unix(0, h.CreatedNs).UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "frames    %d\n", h.TotalFrames)

	dur := time.Duration(h.EndNs - h.StartNs)
	if h.TotalFrames > 1 && dur > 0 {
		fps := float64(h.TotalFrames-1) / dur.Seconds()
		fmt.Fprintf(w, "duration  %s (%.1f fps)\n", dur.Round(time.Millisecond), fps)
	} else {
		fmt.Fprintf(w, "duration  %s\n", dur.Round(time.Millisecond))
	}

	chunks := (h.TotalFrames + recorder.ChunkSize - 1) / recorder.ChunkSize
	fmt.Fprintf(w, "chunks    %d (up to %d frames each)\n", chunks, recorder.ChunkSize)
}

func handleExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	output := fs.String("o", "", "Output bundle path (default: <clip>.tar.gz next to the clip)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		log.Fatal("Usage: clips export [options] <clip.pslog>")
	}
	clipPath := filepath.Clean(fs.Arg(0))

	dest := *output
	if dest == "" {
		base := security.SanitizeFilename(strings.TrimSuffix(filepath.Base(clipPath), recorder.FileExtension))
		dest = filepath.Join(filepath.Dir(clipPath), base+".tar.gz")
	}
	if err := security.ValidateExportPath(dest, filepath.Dir(clipPath)); err != nil {
		log.Fatalf("Refusing export destination: %v", err)
	}

	n, err := exportClip(clipPath, dest)
	if err != nil {
		log.Fatalf("Export failed: %v", err)
	}
	log.Printf("✓ Exported %s (%d files) to %s", clipPath, n, dest)
}

// exportClip flattens a clip directory into a gzipped tar bundle rooted
// at the clip directory's name. The clip is opened as a replayer first so
// arbitrary directories cannot be bundled by mistake.
func exportClip(clipPath, dest string) (int, error) {
	rep, err := recorder.NewReplayer(clipPath)
	if err != nil {
		return 0, fmt.Errorf("not a readable clip: %w", err)
	}
	rep.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	root := filepath.Base(clipPath)
	count := 0
	err = filepath.WalkDir(clipPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(clipPath, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(filepath.Join(root, rel))

		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return tw.WriteHeader(&tar.Header{
				Typeflag: tar.TypeDir,
				Name:     name + "/",
				Mode:     0755,
				ModTime:  info.ModTime(),
			})
		}

		if err := tw.WriteHeader(&tar.Header{
			Name:    name,
			Mode:    0644,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}

	// Close explicitly so flush errors surface instead of vanishing in
	// the deferred calls.
	if err := tw.Close(); err != nil {
		return 0, err
	}
	if err := gz.Close(); err != nil {
		return 0, err
	}
	return count, nil
}
