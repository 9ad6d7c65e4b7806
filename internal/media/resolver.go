package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kpai47/katha/internal/logging"
	"github.com/kpai47/katha/internal/timeline"
)

// resolver tuning
type ResolverOptions struct {
	Orientation timeline.Orientation // preferred candidate orientation
	Timeout     time.Duration        // per provider call
	MaxAttempts int                  // attempts per provider on transient errors
	Backoff     time.Duration        // initial retry delay, doubles per attempt
	Candidates  int                  // results requested per search
}

func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{
		Orientation: timeline.OrientationLandscape,
		Timeout:     30 * time.Second,
		MaxAttempts: 3,
		Backoff:     time.Second,
		Candidates:  5,
	}
}

func (o *ResolverOptions) applyDefaults() {
	def := DefaultResolverOptions()
	if o.Orientation == "" {
		o.Orientation = def.Orientation
	}
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = def.Backoff
	}
	if o.Candidates <= 0 {
		o.Candidates = def.Candidates
	}
}

// resolves scenes to local media files through an ordered provider chain
type Resolver struct {
	providers []Provider
	fetcher   Fetcher
	opts      ResolverOptions
	logger    *logging.Logger

	mu    sync.Mutex
	cache map[string]timeline.ResolvedMedia // (provider, query) -> media, per run
}

func NewResolver(
	providers []Provider,
	fetcher Fetcher,
	opts ResolverOptions,
	logger *logging.Logger,
) *Resolver {
	opts.applyDefaults()
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{
		providers: providers,
		fetcher:   fetcher,
		opts:      opts,
		logger:    logger,
		cache:     make(map[string]timeline.ResolvedMedia),
	}
}

// walks the provider chain in order until a candidate downloads.
// Transient provider errors are retried with exponential backoff and never
// surface past this method; a fully exhausted chain yields *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, scene timeline.Scene) (*timeline.ResolvedMedia, error) {
	if len(r.providers) == 0 {
		return nil, &ResolutionError{SceneIndex: scene.Index}
	}

	var exhausted []timeline.MediaSource
	var lastErr error

	for _, provider := range r.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if cached, ok := r.cached(provider.Name(), scene.Query); ok {
			r.logger.Debugw("media cache hit",
				"scene", scene.Index,
				"provider", provider.Name(),
			)
			return &cached, nil
		}

		resolved, err := r.tryProvider(ctx, provider, scene)
		if err == nil {
			r.store(provider.Name(), scene.Query, *resolved)
			return resolved, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		r.logger.Debugw("provider failed, advancing chain",
			"scene", scene.Index,
			"provider", provider.Name(),
			"error", err,
		)
		exhausted = append(exhausted, provider.Name())
		lastErr = err
	}

	return nil, &ResolutionError{
		SceneIndex: scene.Index,
		Exhausted:  exhausted,
		LastErr:    lastErr,
	}
}

// one provider: bounded retries on transient search errors, then candidate
// selection and download
func (r *Resolver) tryProvider(
	ctx context.Context,
	provider Provider,
	scene timeline.Scene,
) (*timeline.ResolvedMedia, error) {
	var candidates []Candidate
	var err error

	delay := r.opts.Backoff
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		candidates, err = r.search(ctx, provider, scene.Query)
		if err == nil {
			break
		}
		if !IsTransient(err) || attempt == r.opts.MaxAttempts {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, &PermanentError{Err: fmt.Errorf("%s: no results for %q", provider.Name(), scene.Query)}
	}

	for _, c := range orderCandidates(candidates, r.opts.Orientation) {
		localPath, ferr := r.fetcher.Fetch(ctx, c.URL, fmt.Sprintf("scene_%d", scene.Index))
		if ferr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			err = ferr
			continue
		}
		return &timeline.ResolvedMedia{
			Kind:      c.Kind,
			Source:    provider.Name(),
			LocalPath: localPath,
			FetchedAt: time.Now(),
		}, nil
	}
	return nil, fmt.Errorf("%s: every candidate failed to download: %w", provider.Name(), err)
}

func (r *Resolver) search(ctx context.Context, provider Provider, query string) ([]Candidate, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	return provider.Search(callCtx, query, r.opts.Candidates)
}

// candidates whose orientation matches the target come first,
// original order is kept otherwise
func orderCandidates(candidates []Candidate, target timeline.Orientation) []Candidate {
	ordered := make([]Candidate, 0, len(candidates))
	var rest []Candidate
	for _, c := range candidates {
		if c.Orientation == target {
			ordered = append(ordered, c)
		} else {
			rest = append(rest, c)
		}
	}
	return append(ordered, rest...)
}

func (r *Resolver) cached(source timeline.MediaSource, query string) (timeline.ResolvedMedia, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.cache[cacheKey(source, query)]
	return m, ok
}

func (r *Resolver) store(source timeline.MediaSource, query string, m timeline.ResolvedMedia) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[cacheKey(source, query)] = m
}

func cacheKey(source timeline.MediaSource, query string) string {
	return string(source) + "|" + query
}
