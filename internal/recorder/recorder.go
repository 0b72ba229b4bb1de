// Package recorder provides recording and replay of pose frame streams.
//
// A clip is a directory with a .pslog suffix holding a header.json, a
// binary seek index, and chunked frame files. Frames are stored as their
// wire JSON lines, length-prefixed, so a replayed clip is byte-for-byte
// what the feed device sent.
package recorder

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sitwell-data/posture.report/internal/pose"
)

// FileExtension is the extension for pose log clip directories.
const FileExtension = ".pslog"

// ChunkSize is the number of frames per chunk file.
const ChunkSize = 1000

// LogHeader contains metadata about a recorded clip.
type LogHeader struct {
	Version     string `json:"version"`
	CreatedNs   int64  `json:"created_ns"`
	DeviceID    string `json:"device_id"`
	TotalFrames uint64 `json:"total_frames"`
	StartNs     int64  `json:"start_ns"`
	EndNs       int64  `json:"end_ns"`
	Capture     struct {
		Source  string `json:"source"`
		TensorW int    `json:"tensor_w"`
		TensorH int    `json:"tensor_h"`
	} `json:"capture"`
}

// IndexEntry is an entry in the seek index.
type IndexEntry struct {
	Sequence    uint64
	TimestampNs int64
	ChunkID     uint32
	Offset      uint32
}

// Recorder writes pose frames to a clip directory.
type Recorder struct {
	basePath string
	deviceID string

	header       LogHeader
	index        []IndexEntry
	currentChunk int
	chunkFile    *os.File
	chunkOffset  uint32

	frameCount uint64
	startNs    int64
	endNs      int64

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a Recorder that writes to the given directory.
// If path is empty, a timestamped directory is created in /tmp.
func NewRecorder(basePath, deviceID string) (*Recorder, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), fmt.Sprintf("clip_%s_%d%s", deviceID, time.Now().Unix(), FileExtension))
	}

	if err := os.MkdirAll(filepath.Join(basePath, "frames"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create clip directory: %w", err)
	}

	r := &Recorder{
		basePath:     basePath,
		deviceID:     deviceID,
		currentChunk: -1,
		index:        make([]IndexEntry, 0),
		header: LogHeader{
			Version:   "1.0",
			CreatedNs: time.Now().UnixNano(),
			DeviceID:  deviceID,
		},
	}

	r.header.Capture.Source = "live"

	return r, nil
}

// SetSource records where the frames came from ("live", "udp",
// "synthetic"). Takes effect when the header is written on Close.
func (r *Recorder) SetSource(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.header.Capture.Source = source
}

// Record writes one frame to the clip.
func (r *Recorder) Record(frame *pose.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("recorder is closed")
	}

	if r.frameCount == 0 {
		r.startNs = frame.TimestampNanos
		r.header.Capture.TensorW = frame.TensorWidth
		r.header.Capture.TensorH = frame.TensorHeight
	}
	r.endNs = frame.TimestampNanos

	chunkIdx := int(r.frameCount / ChunkSize)
	if chunkIdx != r.currentChunk {
		if err := r.rotateChunk(chunkIdx); err != nil {
			return err
		}
	}

	data, err := frame.MarshalWire()
	if err != nil {
		return fmt.Errorf("failed to serialize frame: %w", err)
	}

	// Write length-prefixed frame
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := r.chunkFile.Write(lenBuf); err != nil {
		return fmt.Errorf("failed to write frame length: %w", err)
	}
	if _, err := r.chunkFile.Write(data); err != nil {
		return fmt.Errorf("failed to write frame data: %w", err)
	}

	r.index = append(r.index, IndexEntry{
		Sequence:    frame.Sequence,
		TimestampNs: frame.TimestampNanos,
		ChunkID:     uint32(chunkIdx),
		Offset:      r.chunkOffset,
	})

	r.chunkOffset += uint32(4 + len(data))
	r.frameCount++

	return nil
}

// RecordLine parses a raw wire line and records the frame. Convenient
// for tapping the live feed without a second parse step at the call
// site.
func (r *Recorder) RecordLine(line []byte) error {
	frame, err := pose.ParseFrame(line)
	if err != nil {
		return err
	}
	return r.Record(frame)
}

// rotateChunk closes the current chunk and opens a new one.
func (r *Recorder) rotateChunk(chunkIdx int) error {
	if r.chunkFile != nil {
		if err := r.chunkFile.Close(); err != nil {
			return err
		}
	}

	chunkPath := filepath.Join(r.basePath, "frames", chunkFileName(chunkIdx))
	f, err := os.Create(chunkPath)
	if err != nil {
		return fmt.Errorf("failed to create chunk file: %w", err)
	}

	r.chunkFile = f
	r.currentChunk = chunkIdx
	r.chunkOffset = 0

	return nil
}

func chunkFileName(chunkIdx int) string {
	return fmt.Sprintf("chunk_%04d.bin", chunkIdx)
}

// Close finalises the clip and writes the header and index.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.chunkFile != nil {
		r.chunkFile.Close()
	}

	r.header.TotalFrames = r.frameCount
	r.header.StartNs = r.startNs
	r.header.EndNs = r.endNs

	headerPath := filepath.Join(r.basePath, "header.json")
	headerData, err := json.MarshalIndent(r.header, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := os.WriteFile(headerPath, headerData, 0644); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	indexPath := filepath.Join(r.basePath, "index.bin")
	indexFile, err := os.Create(indexPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer indexFile.Close()

	for _, entry := range r.index {
		if err := binary.Write(indexFile, binary.LittleEndian, entry.Sequence); err != nil {
			return err
		}
		if err := binary.Write(indexFile, binary.LittleEndian, entry.TimestampNs); err != nil {
			return err
		}
		if err := binary.Write(indexFile, binary.LittleEndian, entry.ChunkID); err != nil {
			return err
		}
		if err := binary.Write(indexFile, binary.LittleEndian, entry.Offset); err != nil {
			return err
		}
	}

	return nil
}

// Path returns the base path of the clip.
func (r *Recorder) Path() string {
	return r.basePath
}

// FrameCount returns the number of frames recorded.
func (r *Recorder) FrameCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameCount
}
