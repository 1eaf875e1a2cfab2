package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pion/opus"
	"github.com/pion/opus/pkg/oggreader"
	"github.com/zeozeozeo/gomplerate"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
)

const (
	targetSampleRate = 16000 // Whisper.cpp requires 16kHz
	maxFrameSize     = 5760  // Max Opus frame size (120ms at 48kHz)
)

// ErrUnsupportedFormat is returned for audio that cannot be decoded without ffmpeg.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// ConvertToFloat32 converts an audio file to 16kHz mono float32 samples.
// PCM WAV (what the recorders produce) is decoded in-process; OGG/Opus
// prefers ffmpeg and falls back to pion/opus; anything else needs ffmpeg.
func ConvertToFloat32(ctx context.Context, filePath string) ([]float32, error) {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".wav":
		f, err := os.Open(filePath)
		if err != nil {
			return nil, fmt.Errorf("open audio file: %w", err)
		}
		defer f.Close()
		samples, rate, err := DecodeWAV(f)
		if err != nil {
			if ffmpegAvailable() {
				L_debug("stt: wav decode failed, trying ffmpeg", "file", filePath, "error", err)
				return convertWithFFmpeg(ctx, filePath)
			}
			return nil, err
		}
		return int16ToFloat32(resampleInt16(samples, rate, targetSampleRate)), nil

	case ".ogg", ".opus", ".oga":
		if ffmpegAvailable() {
			return convertWithFFmpeg(ctx, filePath)
		}
		samples, err := convertOggOpusSafe(filePath)
		if err != nil {
			return nil, fmt.Errorf("OGG decoding failed (%v) - install ffmpeg for reliable audio conversion", err)
		}
		return samples, nil
	}

	if ffmpegAvailable() {
		return convertWithFFmpeg(ctx, filePath)
	}
	return nil, fmt.Errorf("%w %s (install ffmpeg)", ErrUnsupportedFormat, ext)
}

// DecodeWAV reads a 16-bit PCM RIFF/WAVE stream and returns mono samples and the sample rate.
func DecodeWAV(r io.Reader) ([]int16, int, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, 0, fmt.Errorf("read wav header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedFormat)
	}

	var (
		channels   int
		sampleRate int
		bits       int
		haveFmt    bool
	)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, 0, fmt.Errorf("read wav chunk: %w", err)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedFormat)
			}
			buf := make([]byte, size)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(buf[0:2])
			channels = int(binary.LittleEndian.Uint16(buf[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
			bits = int(binary.LittleEndian.Uint16(buf[14:16]))
			if format != 1 && format != 0xFFFE {
				return nil, 0, fmt.Errorf("%w: wav format %d", ErrUnsupportedFormat, format)
			}
			if bits != 16 || channels < 1 {
				return nil, 0, fmt.Errorf("%w: %d-bit %d-channel wav", ErrUnsupportedFormat, bits, channels)
			}
			haveFmt = true
			if size%2 == 1 {
				io.CopyN(io.Discard, r, 1)
			}

		case "data":
			if !haveFmt {
				return nil, 0, fmt.Errorf("%w: data before fmt", ErrUnsupportedFormat)
			}
			// Recorders streaming to a file may leave size as 0 or 0xFFFFFFFF
			var data []byte
			var err error
			if size == 0 || size == math.MaxUint32 {
				data, err = io.ReadAll(r)
			} else {
				data = make([]byte, size)
				var n int
				n, err = io.ReadFull(r, data)
				if errors.Is(err, io.ErrUnexpectedEOF) {
					data, err = data[:n], nil
				}
			}
			if err != nil {
				return nil, 0, fmt.Errorf("read wav data: %w", err)
			}
			samples := make([]int16, len(data)/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:])) // #nosec G115 - PCM sample reinterpretation
			}
			return toMono(samples, channels), sampleRate, nil

		default:
			skip := int64(size) + int64(size%2)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, 0, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

// EncodeWAV writes 16-bit mono PCM samples as a WAV stream.
func EncodeWAV(w io.Writer, samples []int16, sampleRate int) error {
	var buf bytes.Buffer
	dataLen := uint32(len(samples) * 2) // #nosec G115 - bounded by segment length

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))                // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1))                // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))       // #nosec G115
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))     // #nosec G115 - byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(2))                // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))               // bits per sample
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	binary.Write(&buf, binary.LittleEndian, samples)

	_, err := w.Write(buf.Bytes())
	return err
}

// convertOggOpusSafe wraps convertOggOpus with panic recovery.
// pion/opus panics on some streams.
func convertOggOpusSafe(filePath string) (samples []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			L_warn("stt: opus decoder panicked, recovered", "panic", r)
			err = fmt.Errorf("decoder panic: %v", r)
			samples = nil
		}
	}()
	return convertOggOpus(filePath)
}

// convertOggOpus decodes OGG/Opus to 16kHz mono float32 using pure Go.
func convertOggOpus(filePath string) ([]float32, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	ogg, header, err := oggreader.NewWith(file)
	if err != nil {
		return nil, fmt.Errorf("parse OGG container: %w", err)
	}

	sampleRate := int(header.SampleRate)
	channels := int(header.Channels)
	decoder := opus.NewDecoder()
	outBuf := make([]byte, maxFrameSize*channels*2)

	var allSamples []int16
	for {
		segments, _, err := ogg.ParseNextPage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse OGG page: %w", err)
		}

		for _, segment := range segments {
			if len(segment) == 0 {
				continue
			}
			_, isStereo, err := decoder.Decode(segment, outBuf)
			if err != nil {
				L_trace("stt: skipping packet", "error", err, "len", len(segment))
				continue
			}
			actualChannels := 1
			if isStereo {
				actualChannels = 2
			}
			allSamples = append(allSamples, bytesToInt16(outBuf, actualChannels)...)
		}
	}

	if len(allSamples) == 0 {
		return nil, fmt.Errorf("no audio samples decoded from %s", filePath)
	}

	if channels > 1 {
		allSamples = toMono(allSamples, channels)
	}
	allSamples = resampleInt16(allSamples, sampleRate, targetSampleRate)
	return int16ToFloat32(allSamples), nil
}

// bytesToInt16 converts a decoder buffer to int16 samples, dropping trailing unused space.
func bytesToInt16(buf []byte, channels int) []int16 {
	end := len(buf) - len(buf)%2
	for end >= 2 && buf[end-1] == 0 && buf[end-2] == 0 {
		end -= 2
	}
	end -= end % (2 * channels)

	samples := make([]int16, end/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:])) // #nosec G115 - PCM sample reinterpretation
	}
	return samples
}

// toMono converts multi-channel audio to mono by averaging channels.
func toMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}

	mono := make([]int16, len(samples)/channels)
	for i := range mono {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			sum += int32(samples[i*channels+ch])
		}
		mono[i] = int16(sum / int32(channels)) // #nosec G115 - safe: channels is small (1-8)
	}
	return mono
}

// resampleInt16 converts audio from one sample rate to another using gomplerate.
func resampleInt16(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 {
		return samples
	}

	resampler, err := gomplerate.NewResampler(1, fromRate, toRate)
	if err != nil {
		L_warn("stt: resampler creation failed, skipping resample", "error", err)
		return samples
	}
	return resampler.ResampleInt16(samples)
}

// int16ToFloat32 converts int16 samples to float32 normalized to [-1, 1].
func int16ToFloat32(samples []int16) []float32 {
	result := make([]float32, len(samples))
	for i, s := range samples {
		result[i] = float32(s) / 32768.0
	}
	return result
}

// RMS returns the root-mean-square level of samples in [0, 1].
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ffmpegAvailable checks if ffmpeg is installed.
func ffmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// convertWithFFmpeg uses ffmpeg to convert audio to 16kHz mono PCM on stdout.
func convertWithFFmpeg(ctx context.Context, inputPath string) ([]float32, error) {
	// #nosec G204 - inputPath is a recorder segment we created
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-nostdin", "-loglevel", "error",
		"-i", inputPath,
		"-ar", strconv.Itoa(targetSampleRate),
		"-ac", "1",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	raw, err := cmd.Output()
	if err != nil {
		L_debug("stt: ffmpeg output", "stderr", stderr.String())
		return nil, fmt.Errorf("ffmpeg conversion failed: %w", err)
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:])) // #nosec G115
	}
	return int16ToFloat32(samples), nil
}
