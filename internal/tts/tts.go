package tts

import (
	"context"
	"fmt"
)

// interface for narration synthesis backends
type Speaker interface {
	// synthesizes spoken narration for text into an audio file at outputPath
	Speak(ctx context.Context, text, outputPath string) error
}

// TTS provider
type Provider string

const (
	ProviderPollinations Provider = "pollinations"
)

// synthesis options
type Options struct {
	Voice string
}

// creates a speaker based on provider
func Factory(provider Provider, apiKey string, opts Options) (Speaker, error) {
	switch provider {
	case ProviderPollinations:
		return NewPollinationsSpeaker(apiKey, opts), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
