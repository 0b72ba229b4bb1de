// Command gen-poselog generates synthetic .pslog clips and NDJSON frame
// fixtures for dev mode, replay testing, and demos.
package main

import (
	"bufio"
	"flag"
	"log"
	"os"
	"time"

	"github.com/sitwell-data/posture.report/internal/pose"
	"github.com/sitwell-data/posture.report/internal/recorder"
	"github.com/sitwell-data/posture.report/internal/synthetic"
)

func main() {
	output := flag.String("o", "sample.pslog", "output clip path")
	ndjson := flag.String("ndjson", "", "also write frame lines to this NDJSON fixture file")
	frames := flag.Int("n", 900, "number of frames")
	device := flag.String("device", "synthetic", "device ID stamped on frames")
	facing := flag.String("facing", "back", "camera facing (front or back)")
	seed := flag.Int64("seed", 1, "random walk seed")
	fps := flag.Float64("fps", 30, "frame cadence stamped on timestamps")
	startNs := flag.Int64("start-ns", 0, "first frame timestamp (default: now)")
	awayEvery := flag.Int("away-every", 0, "insert an empty-frame gap after this many posed frames (0 = never)")
	flag.Parse()

	f := pose.Facing(*facing)
	if !f.Valid() {
		log.Fatalf("invalid facing %q (want front or back)", *facing)
	}

	gen := synthetic.NewGenerator(synthetic.Config{
		DeviceID:  *device,
		Facing:    f,
		Seed:      *seed,
		FPS:       *fps,
		StartNs:   *startNs,
		AwayEvery: *awayEvery,
	})

	rec, err := recorder.NewRecorder(*output, *device)
	if err != nil {
		log.Fatalf("failed to create clip: %v", err)
	}
	rec.SetSource("synthetic")

	var fixture *bufio.Writer
	if *ndjson != "" {
		nf, err := os.Create(*ndjson)
		if err != nil {
			log.Fatalf("failed to create fixture file: %v", err)
		}
		defer nf.Close()
		fixture = bufio.NewWriter(nf)
		defer fixture.Flush()
	}

	start := time.Now()
	for i := 0; i < *frames; i++ {
		frame := gen.NextFrame()
		if err := rec.Record(frame); err != nil {
			log.Fatalf("failed to record frame: %v", err)
		}
		if fixture != nil {
			line, err := frame.MarshalWire()
			if err != nil {
				log.Fatalf("failed to serialize frame: %v", err)
			}
			fixture.Write(line)
			fixture.WriteByte('\n')
		}
		if (i+1)%300 == 0 {
			log.Printf("%d/%d frames", i+1, *frames)
		}
	}

	if err := rec.Close(); err != nil {
		log.Fatalf("failed to finalise clip: %v", err)
	}
	log.Printf("✓ Created %s (%d frames in %s)", *output, rec.FrameCount(), time.Since(start).Round(time.Millisecond))
	if *ndjson != "" {
		log.Printf("✓ Created %s", *ndjson)
	}
}
