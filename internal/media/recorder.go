package media

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// recorderChanSize buffers incoming RTP payloads. At 50 packets/sec
	// (20ms ptime) this holds roughly 2.5 seconds of audio.
	recorderChanSize = 128

	// recorderFlushSize is how many u-law bytes accumulate before a disk
	// write. 8000 bytes is one second at 8kHz.
	recorderFlushSize = 8000

	wavHeaderSize = 44
	wavFormatPCMU = 7 // WAVE_FORMAT_MULAW
)

// recorderFrame is one RTP payload queued for recording.
type recorderFrame struct {
	payload     []byte
	payloadType int
}

// Recorder captures the received audio stream of a call to a G.711 u-law
// WAV file. A dedicated goroutine drains a buffered channel, transcoding
// a-law input to u-law on the way to disk.
//
// Feed is non-blocking: when the write goroutine falls behind, frames are
// dropped rather than stalling the RTP read loop. Stop must be called
// exactly once; calling it again returns the path with zero duration.
type Recorder struct {
	mu       sync.Mutex
	file     *os.File
	filePath string
	dataSize uint32
	stopped  bool
	logger   *slog.Logger

	frames chan recorderFrame
	done   chan struct{}
}

// NewRecorder creates a recorder writing to filePath, creating parent
// directories as needed. The write goroutine starts immediately.
func NewRecorder(filePath string, logger *slog.Logger) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("creating recording directory: %w", err)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("creating recording file: %w", err)
	}

	// Placeholder header; rewritten with the real data size on Stop.
	if err := writeWAVHeader(f, 0); err != nil {
		f.Close()
		os.Remove(filePath)
		return nil, fmt.Errorf("writing wav header: %w", err)
	}

	r := &Recorder{
		file:     f,
		filePath: filePath,
		logger:   logger.With("subsystem", "recorder", "file", filePath),
		frames:   make(chan recorderFrame, recorderChanSize),
		done:     make(chan struct{}),
	}
	go r.writeLoop()

	r.logger.Info("call recording started")
	return r, nil
}

// Feed queues an RTP payload for recording. The payload is copied so the
// caller's read buffer can be reused. Unsupported payload types are ignored
// by the write loop.
func (r *Recorder) Feed(payload []byte, payloadType int) {
	if len(payload) == 0 {
		return
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)

	select {
	case r.frames <- recorderFrame{payload: buf, payloadType: payloadType}:
	default:
		// Write goroutine is behind; drop rather than block the reader.
	}
}

// Stop drains pending frames, rewrites the WAV header with the final data
// size, and closes the file. Returns the file path and audio duration.
func (r *Recorder) Stop() (filePath string, duration time.Duration) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return r.filePath, 0
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.frames)
	<-r.done

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.file.Seek(0, 0); err != nil {
		r.logger.Error("seek for wav header rewrite failed", "error", err)
	} else if err := writeWAVHeader(r.file, r.dataSize); err != nil {
		r.logger.Error("wav header rewrite failed", "error", err)
	}
	r.file.Close()

	// 8000 bytes per second for G.711 u-law at 8kHz mono.
	duration = time.Duration(r.dataSize) * time.Second / 8000

	r.logger.Info("call recording stopped",
		"duration", duration.String(),
		"total_bytes", r.dataSize,
	)
	return r.filePath, duration
}

// FilePath returns the path of the recording file.
func (r *Recorder) FilePath() string {
	return r.filePath
}

func (r *Recorder) writeLoop() {
	defer close(r.done)

	writeBuf := make([]byte, 0, recorderFlushSize)
	flush := func() {
		if len(writeBuf) == 0 {
			return
		}
		n, err := r.file.Write(writeBuf)
		if err != nil {
			r.logger.Error("recording write failed", "error", err)
		}
		r.mu.Lock()
		r.dataSize += uint32(n)
		r.mu.Unlock()
		writeBuf = writeBuf[:0]
	}

	for frame := range r.frames {
		writeBuf = TranscodeToULaw(writeBuf, frame.payload, frame.payloadType)
		if len(writeBuf) >= recorderFlushSize {
			flush()
		}
	}
	flush()
}

// RecordingPath returns the date-organized path for a call recording:
// $dir/YYYY/MM/DD/call_<id>.wav
func RecordingPath(dir, sessionID string, t time.Time) string {
	return filepath.Join(
		dir,
		t.Format("2006"),
		t.Format("01"),
		t.Format("02"),
		fmt.Sprintf("call_%s.wav", sessionID),
	)
}

// writeWAVHeader writes the 44-byte header for 8kHz mono G.711 u-law audio.
func writeWAVHeader(f *os.File, dataSize uint32) error {
	var hdr [wavHeaderSize]byte

	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], wavHeaderSize-8+dataSize)
	copy(hdr[8:12], "WAVE")

	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], wavFormatPCMU)
	binary.LittleEndian.PutUint16(hdr[22:24], 1)    // mono
	binary.LittleEndian.PutUint32(hdr[24:28], 8000) // sample rate
	binary.LittleEndian.PutUint32(hdr[28:32], 8000) // byte rate
	binary.LittleEndian.PutUint16(hdr[32:34], 1)    // block align
	binary.LittleEndian.PutUint16(hdr[34:36], 8)    // bits per sample

	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataSize)

	_, err := f.Write(hdr[:])
	return err
}
