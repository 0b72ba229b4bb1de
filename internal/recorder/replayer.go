package recorder

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sitwell-data/posture.report/internal/pose"
	"github.com/sitwell-data/posture.report/internal/timeutil"
)

// Replayer reads pose frames from a recorded clip.
type Replayer struct {
	basePath string
	header   LogHeader
	index    []IndexEntry

	// Playback state
	currentFrame uint64
	paused       bool
	rate         float32

	// Chunk cache
	currentChunk int
	chunkData    []byte

	mu sync.Mutex
}

// NewReplayer opens a clip for replay.
func NewReplayer(basePath string) (*Replayer, error) {
	r := &Replayer{
		basePath:     basePath,
		currentChunk: -1,
		rate:         1.0,
	}

	headerPath := filepath.Join(basePath, "header.json")
	headerData, err := os.ReadFile(headerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerData, &r.header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	indexPath := filepath.Join(basePath, "index.bin")
	indexFile, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer indexFile.Close()

	r.index = make([]IndexEntry, 0, r.header.TotalFrames)
	for {
		var entry IndexEntry
		if err := binary.Read(indexFile, binary.LittleEndian, &entry.Sequence); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if err := binary.Read(indexFile, binary.LittleEndian, &entry.TimestampNs); err != nil {
			return nil, err
		}
		if err := binary.Read(indexFile, binary.LittleEndian, &entry.ChunkID); err != nil {
			return nil, err
		}
		if err := binary.Read(indexFile, binary.LittleEndian, &entry.Offset); err != nil {
			return nil, err
		}
		r.index = append(r.index, entry)
	}

	return r, nil
}

// Header returns the clip header.
func (r *Replayer) Header() LogHeader {
	return r.header
}

// TotalFrames returns the total number of frames in the clip.
func (r *Replayer) TotalFrames() uint64 {
	return r.header.TotalFrames
}

// CurrentFrame returns the current frame index.
func (r *Replayer) CurrentFrame() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentFrame
}

// Seek seeks to a specific frame by index.
func (r *Replayer) Seek(frameIdx uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if frameIdx >= uint64(len(r.index)) {
		return fmt.Errorf("frame index out of range: %d >= %d", frameIdx, len(r.index))
	}

	r.currentFrame = frameIdx
	return nil
}

// SeekToTimestamp seeks to the first frame at or after the given
// timestamp, or to the last frame when the timestamp is past the end of
// the clip.
func (r *Replayer) SeekToTimestamp(timestampNs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.index) == 0 {
		return fmt.Errorf("clip contains no frames")
	}

	i := sort.Search(len(r.index), func(i int) bool {
		return r.index[i].TimestampNs >= timestampNs
	})
	if i >= len(r.index) {
		i = len(r.index) - 1
	}

	r.currentFrame = uint64(i)
	return nil
}

// ReadLine reads the current frame's raw wire line and advances. Returns
// io.EOF past the end of the clip.
func (r *Replayer) ReadLine() ([]byte, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentFrame >= uint64(len(r.index)) {
		return nil, 0, io.EOF
	}

	entry := r.index[r.currentFrame]

	if int(entry.ChunkID) != r.currentChunk {
		if err := r.loadChunk(int(entry.ChunkID)); err != nil {
			return nil, 0, err
		}
	}

	offset := entry.Offset
	if offset+4 > uint32(len(r.chunkData)) {
		return nil, 0, fmt.Errorf("invalid frame offset")
	}

	frameLen := binary.LittleEndian.Uint32(r.chunkData[offset:])
	offset += 4

	if offset+frameLen > uint32(len(r.chunkData)) {
		return nil, 0, fmt.Errorf("invalid frame length")
	}

	line := r.chunkData[offset : offset+frameLen]
	r.currentFrame++
	return line, entry.TimestampNs, nil
}

// ReadFrame reads the current frame and advances.
func (r *Replayer) ReadFrame() (*pose.Frame, error) {
	line, _, err := r.ReadLine()
	if err != nil {
		return nil, err
	}

	frame, err := pose.ParseFrame(line)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize frame: %w", err)
	}
	return frame, nil
}

// loadChunk loads a chunk file into memory.
func (r *Replayer) loadChunk(chunkIdx int) error {
	chunkPath := filepath.Join(r.basePath, "frames", chunkFileName(chunkIdx))
	data, err := os.ReadFile(chunkPath)
	if err != nil {
		return fmt.Errorf("failed to read chunk: %w", err)
	}

	r.chunkData = data
	r.currentChunk = chunkIdx
	return nil
}

// SetPaused sets the paused state.
func (r *Replayer) SetPaused(paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = paused
}

// Paused reports the paused state.
func (r *Replayer) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// SetRate sets the playback rate.
func (r *Replayer) SetRate(rate float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate = rate
}

// Rate returns the playback rate.
func (r *Replayer) Rate() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rate
}

// Close closes the replayer.
func (r *Replayer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunkData = nil
	r.currentChunk = -1
	return nil
}

// pausePollInterval is how often ReplayLoop re-checks a paused replayer.
const pausePollInterval = 50 * time.Millisecond

// ReplayLoop streams the clip's raw lines to sink, sleeping the recorded
// inter-frame gap between deliveries. The gap is divided by the
// replayer's rate; maxFPS, when positive, caps delivery speed by
// enforcing a minimum gap. Returns nil at end of clip.
func ReplayLoop(ctx context.Context, rep *Replayer, clock timeutil.Clock, maxFPS float64, sink func(line []byte)) error {
	if sink == nil {
		return fmt.Errorf("no frame sink configured")
	}

	var minGap time.Duration
	if maxFPS > 0 {
		minGap = time.Duration(float64(time.Second) / maxFPS)
	}

	var prevTs int64
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		for rep.Paused() {
			if err := ctx.Err(); err != nil {
				return err
			}
			clock.Sleep(pausePollInterval)
		}

		line, ts, err := rep.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if !first {
			gap := time.Duration(ts - prevTs)
			if rate := rep.Rate(); rate > 0 {
				gap = time.Duration(float64(gap) / float64(rate))
			}
			if gap < 0 {
				gap = 0
			}
			if minGap > 0 && gap < minGap {
				gap = minGap
			}
			if gap > 0 {
				clock.Sleep(gap)
			}
		}

		sink(line)
		prevTs = ts
		first = false
	}
}
