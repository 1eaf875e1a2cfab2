package narration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
)

// speechCommands are tried in order when no command is configured.
var speechCommands = []string{"espeak-ng", "espeak", "say", "spd-say"}

// DetectCommand returns the first installed speech command, or "".
func DetectCommand() string {
	for _, c := range speechCommands {
		if _, err := exec.LookPath(c); err == nil {
			return c
		}
	}
	return ""
}

// CommandSynthesizer speaks through a host text-to-speech command.
type CommandSynthesizer struct {
	Command string
	Voice   string
	Rate    int // words per minute; 0 keeps the command default
}

// Name implements Synthesizer.
func (c *CommandSynthesizer) Name() string { return c.Command }

// Available implements Synthesizer.
func (c *CommandSynthesizer) Available() error {
	if c.Command == "" {
		return errors.New("no speech command found (install espeak-ng)")
	}
	if _, err := exec.LookPath(c.Command); err != nil {
		return fmt.Errorf("speech command %q not found", c.Command)
	}
	return nil
}

func (c *CommandSynthesizer) args(text string) []string {
	var args []string
	switch c.Command {
	case "say":
		if c.Voice != "" {
			args = append(args, "-v", c.Voice)
		}
		if c.Rate > 0 {
			args = append(args, "-r", strconv.Itoa(c.Rate))
		}
	case "spd-say":
		// -w blocks until speech is done
		args = append(args, "-w")
		if c.Voice != "" {
			args = append(args, "-l", c.Voice)
		}
	default: // espeak, espeak-ng
		if c.Voice != "" {
			args = append(args, "-v", c.Voice)
		}
		if c.Rate > 0 {
			args = append(args, "-s", strconv.Itoa(c.Rate))
		}
	}
	if c.Command == "espeak" || c.Command == "espeak-ng" {
		return append(args, "--", text)
	}
	// say and spd-say have no end-of-options marker
	return append(args, strings.TrimLeft(text, "- "))
}

// Speak implements Synthesizer. Cancelling ctx kills the process.
func (c *CommandSynthesizer) Speak(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, c.Command, c.args(text)...) //nolint:gosec // G204: command from config
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", c.Command, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// OpenAISynthesizer fetches speech from an OpenAI-compatible /audio/speech
// endpoint and plays the WAV with a local player.
type OpenAISynthesizer struct {
	client *openai.Client
	model  string
	voice  string
	player string
}

// OpenAIOptions configures NewOpenAISynthesizer.
type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
	Player  string // "" picks the first installed player
}

// NewOpenAISynthesizer builds a synthesizer. Local servers (e.g. openedai-speech)
// need only BaseURL.
func NewOpenAISynthesizer(opts OpenAIOptions) *OpenAISynthesizer {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = string(openai.TTSModel1)
	}
	voice := opts.Voice
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	player := opts.Player
	if player == "" {
		player = detectPlayer()
	}
	return &OpenAISynthesizer{client: openai.NewClientWithConfig(cfg), model: model, voice: voice, player: player}
}

func detectPlayer() string {
	for _, p := range []string{"ffplay", "aplay", "afplay", "paplay"} {
		if _, err := exec.LookPath(p); err == nil {
			return p
		}
	}
	return ""
}

// Name implements Synthesizer.
func (o *OpenAISynthesizer) Name() string { return "openai" }

// Available implements Synthesizer.
func (o *OpenAISynthesizer) Available() error {
	if o.player == "" {
		return errors.New("no audio player found (install ffmpeg or alsa-utils)")
	}
	if _, err := exec.LookPath(o.player); err != nil {
		return fmt.Errorf("audio player %q not found", o.player)
	}
	return nil
}

// Speak implements Synthesizer.
func (o *OpenAISynthesizer) Speak(ctx context.Context, text string) error {
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          text,
		Voice:          openai.SpeechVoice(o.voice),
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return fmt.Errorf("create speech: %w", err)
	}
	defer resp.Close()

	f, err := os.CreateTemp("", "gocoach-speech-*.wav")
	if err != nil {
		return err
	}
	path := f.Name()
	defer os.Remove(path)

	_, err = io.Copy(f, resp)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write speech audio: %w", err)
	}

	return o.play(ctx, path)
}

func (o *OpenAISynthesizer) play(ctx context.Context, path string) error {
	var args []string
	switch o.player {
	case "ffplay":
		args = []string{"-nodisp", "-autoexit", "-loglevel", "quiet", path}
	case "aplay":
		args = []string{"-q", path}
	default:
		args = []string{path}
	}
	cmd := exec.CommandContext(ctx, o.player, args...) //nolint:gosec // G204: player from config
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		L_debug("narration: player failed", "player", o.player, "error", err)
		return fmt.Errorf("%s: %w", o.player, err)
	}
	return nil
}

// Disabled is the synthesizer for narration engine "none".
type Disabled struct{}

// Name implements Synthesizer.
func (Disabled) Name() string { return "none" }

// Available implements Synthesizer.
func (Disabled) Available() error { return errors.New("narration disabled") }

// Speak implements Synthesizer.
func (Disabled) Speak(context.Context, string) error { return ErrUnsupportedEnvironment }
