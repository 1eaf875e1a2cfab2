package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
	"github.com/roelfdiedericks/gocoach/internal/stt"
)

// Recorder records fixed-length WAV segments from the microphone.
type Recorder interface {
	Available() error
	Record(ctx context.Context, path string, seconds int) error
}

// ExecRecorder records with an external command: arecord, sox or ffmpeg.
type ExecRecorder struct {
	Command    string // "arecord", "sox", "ffmpeg"
	Device     string // optional input device
	SampleRate int
}

var errNoRecorder = errors.New("no recorder command found")

// Available reports whether the recorder binary is installed.
func (r *ExecRecorder) Available() error {
	if r.Command == "" {
		return errNoRecorder
	}
	if _, err := exec.LookPath(r.Command); err != nil {
		return fmt.Errorf("%w: %s", errNoRecorder, r.Command)
	}
	return nil
}

func (r *ExecRecorder) args(path string, seconds int) ([]string, error) {
	rate := r.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	secs := strconv.Itoa(seconds)

	switch r.Command {
	case "arecord":
		args := []string{"-q", "-f", "S16_LE", "-c", "1", "-r", strconv.Itoa(rate), "-d", secs}
		if r.Device != "" {
			args = append(args, "-D", r.Device)
		}
		return append(args, path), nil
	case "sox":
		// -d is the default device; AUDIODEV selects another
		return []string{"-q", "-d", "-c", "1", "-r", strconv.Itoa(rate), "-b", "16", path, "trim", "0", secs}, nil
	case "ffmpeg":
		format, input := "alsa", "default"
		if runtime.GOOS == "darwin" {
			format, input = "avfoundation", ":0"
		}
		if r.Device != "" {
			input = r.Device
		}
		return []string{"-nostdin", "-loglevel", "error", "-f", format, "-i", input,
			"-ac", "1", "-ar", strconv.Itoa(rate), "-t", secs, "-y", path}, nil
	}
	return nil, fmt.Errorf("unsupported recorder %q", r.Command)
}

// Record captures one segment into path.
func (r *ExecRecorder) Record(ctx context.Context, path string, seconds int) error {
	args, err := r.args(path, seconds)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, r.Command, args...) //nolint:gosec // G204: recorder from config
	if r.Command == "sox" && r.Device != "" {
		cmd.Env = append(os.Environ(), "AUDIODEV="+r.Device)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", r.Command, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Probe records a one-second clip and discards it. A recorder that cannot
// open the device is reported as a permission denial.
func (r *ExecRecorder) Probe(ctx context.Context) error {
	if err := r.Available(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedEnvironment, err)
	}
	f, err := os.CreateTemp("", "gocoach-probe-*.wav")
	if err != nil {
		return err
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if err := r.Record(ctx, path, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return nil
}

// SegmentRecognizer approximates streaming recognition by recording short
// segments and transcribing each one. While an utterance grows it emits
// interim results; a quiet segment finalizes it.
type SegmentRecognizer struct {
	Recorder        Recorder
	Provider        stt.Provider
	SegmentSeconds  int
	SilenceSegments int           // quiet segments that finalize an utterance
	EndAfter        time.Duration // silence with nothing pending before an end event
	TempDir         string
}

// Available implements Recognizer.
func (s *SegmentRecognizer) Available() error {
	if s.Provider == nil {
		return stt.ErrNotConfigured
	}
	if s.Recorder == nil {
		return errNoRecorder
	}
	return s.Recorder.Available()
}

// Start implements Recognizer.
func (s *SegmentRecognizer) Start(ctx context.Context, emit func(Event)) error {
	if err := s.Available(); err != nil {
		return err
	}
	dir, err := os.MkdirTemp(s.TempDir, "gocoach-capture-*")
	if err != nil {
		return fmt.Errorf("create segment dir: %w", err)
	}
	go s.loop(ctx, dir, emit)
	return nil
}

func (s *SegmentRecognizer) loop(ctx context.Context, dir string, emit func(Event)) {
	defer os.RemoveAll(dir)

	segSeconds := s.SegmentSeconds
	if segSeconds <= 0 {
		segSeconds = 3
	}
	silence := s.SilenceSegments
	if silence <= 0 {
		silence = 1
	}

	var (
		results   []Result
		utterance []string
		quiet     int
		idleSince = time.Now()
	)

	for seq := 0; ; seq++ {
		if ctx.Err() != nil {
			return
		}
		path := filepath.Join(dir, fmt.Sprintf("seg-%04d.wav", seq))

		if err := s.Recorder.Record(ctx, path, segSeconds); err != nil {
			if ctx.Err() != nil {
				return
			}
			L_warn("capture: segment recording failed", "error", err)
			emit(Event{Type: EventError, Code: CodeAudioCapture})
			return
		}

		text, err := s.Provider.Transcribe(ctx, path)
		os.Remove(path)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			L_warn("capture: transcription failed", "provider", s.Provider.Name(), "error", err)
			emit(Event{Type: EventError, Code: CodeNetwork})
			return
		}

		if text != "" {
			utterance = append(utterance, text)
			quiet = 0
			idleSince = time.Now()
			current := append(append([]Result(nil), results...), Result{Transcript: strings.Join(utterance, " ")})
			emit(Event{Type: EventResult, ResultIndex: len(results), Results: current})
			continue
		}

		quiet++
		if len(utterance) > 0 && quiet >= silence {
			results = append(results, Result{Transcript: strings.Join(utterance, " "), Final: true})
			utterance = nil
			emit(Event{Type: EventResult, ResultIndex: len(results) - 1, Results: append([]Result(nil), results...)})
			idleSince = time.Now()
			continue
		}
		if len(utterance) == 0 && s.EndAfter > 0 && time.Since(idleSince) >= s.EndAfter {
			emit(Event{Type: EventEnd})
			return
		}
	}
}
