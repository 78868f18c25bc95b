package filter

import (
	"strings"

	"github.com/coastwatch/aistracker/internal/schema"
)

// Transformer rewrites an envelope on its way into the pipeline.
type Transformer interface {
	Transform(env schema.Envelope) schema.Envelope
}

// TransformChain applies transformers in order.
type TransformChain []Transformer

// Transform runs the envelope through every transformer in the chain.
func (c TransformChain) Transform(env schema.Envelope) schema.Envelope {
	for _, t := range c {
		if t != nil {
			env = t.Transform(env)
		}
	}
	return env
}

// TaggingTransformer stamps a default source onto envelopes that arrived
// without one, so split-report pairing has a usable key.
type TaggingTransformer struct {
	Provider string
	Channel  string
}

// Transform fills empty source fields with the configured defaults.
func (t TaggingTransformer) Transform(env schema.Envelope) schema.Envelope {
	if strings.TrimSpace(env.Source.Provider) == "" {
		env.Source.Provider = t.Provider
	}
	if strings.TrimSpace(env.Source.Channel) == "" {
		env.Source.Channel = t.Channel
	}
	return env
}
