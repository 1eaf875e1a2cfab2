package stt

import (
	"os"
	"path/filepath"
)

// WhisperModel represents an available whisper.cpp model.
type WhisperModel struct {
	Name      string // Filename: "ggml-tiny.en.bin"
	Label     string // Display name: "Tiny English"
	Size      string // Human readable: "39 MB"
	SizeBytes int64  // For progress calculation
	URL       string // Download URL
}

// WhisperModels is the whisper.cpp catalog offered by `gocoach models`.
var WhisperModels = []WhisperModel{
	{
		Name:      "ggml-tiny.en.bin",
		Label:     "Tiny English",
		Size:      "39 MB",
		SizeBytes: 39_000_000,
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.en.bin",
	},
	{
		Name:      "ggml-tiny.bin",
		Label:     "Tiny Multilingual",
		Size:      "39 MB",
		SizeBytes: 39_000_000,
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.bin",
	},
	{
		Name:      "ggml-base.en.bin",
		Label:     "Base English",
		Size:      "142 MB",
		SizeBytes: 142_000_000,
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.en.bin",
	},
	{
		Name:      "ggml-base.bin",
		Label:     "Base Multilingual",
		Size:      "142 MB",
		SizeBytes: 142_000_000,
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin",
	},
	{
		Name:      "ggml-small.en.bin",
		Label:     "Small English",
		Size:      "466 MB",
		SizeBytes: 466_000_000,
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.en.bin",
	},
	{
		Name:      "ggml-small.bin",
		Label:     "Small Multilingual",
		Size:      "466 MB",
		SizeBytes: 466_000_000,
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin",
	},
	{
		Name:      "ggml-medium.en.bin",
		Label:     "Medium English",
		Size:      "1.5 GB",
		SizeBytes: 1_500_000_000,
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.en.bin",
	},
	{
		Name:      "ggml-medium.bin",
		Label:     "Medium Multilingual",
		Size:      "1.5 GB",
		SizeBytes: 1_500_000_000,
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.bin",
	},
	{
		Name:      "ggml-large-v3-turbo.bin",
		Label:     "Large V3 Turbo Multilingual",
		Size:      "1.6 GB",
		SizeBytes: 1_620_000_000,
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3-turbo.bin",
	},
}

// GetModel returns the model with the given name, or nil if not found.
func GetModel(name string) *WhisperModel {
	for i := range WhisperModels {
		if WhisperModels[i].Name == name {
			return &WhisperModels[i]
		}
	}
	return nil
}

// IsModelDownloaded checks if a model file exists in the given directory.
func IsModelDownloaded(modelsDir, name string) bool {
	if modelsDir == "" || name == "" {
		return false
	}
	path := filepath.Join(modelsDir, name)
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}

// ModelOption is a selectable catalog entry for the setup form.
type ModelOption struct {
	Label      string
	Value      string
	Downloaded bool
}

// ModelOptions lists the catalog, marking models already present in modelsDir.
func ModelOptions(modelsDir string) []ModelOption {
	options := make([]ModelOption, 0, len(WhisperModels))
	for _, m := range WhisperModels {
		downloaded := IsModelDownloaded(modelsDir, m.Name)
		label := m.Label + " (" + m.Size + ")"
		if downloaded {
			label += " - downloaded"
		}
		options = append(options, ModelOption{Label: label, Value: m.Name, Downloaded: downloaded})
	}
	return options
}
