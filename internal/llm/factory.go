package llm

import (
	"fmt"
	"time"
)

// Options selects and configures a host.
type Options struct {
	Host    string // "ollama" or "openai"
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// New creates the host named by opts.Host.
func New(opts Options) (Host, error) {
	switch opts.Host {
	case "", "ollama":
		return NewOllamaHost(opts.BaseURL, opts.Model, opts.Timeout)
	case "openai":
		return NewOpenAIHost(opts.BaseURL, opts.APIKey, opts.Model, opts.Timeout)
	default:
		return nil, fmt.Errorf("unknown generation host: %s", opts.Host)
	}
}
