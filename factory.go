package licensescan

import (
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/git-pkgs/licensescan/licensecache"
)

const defaultUserAgent = "licensescan"

// Option configures a Resolver.
type Option func(*options)

type options struct {
	userAgent   string
	httpClient  *http.Client
	cacheDir    string
	cache       TextCache
	registry    RegistryClient
	fallback    FallbackClient
	fetcher     TextFetcher
	logger      *log.Logger
	concurrency int
	noFallback  bool
}

// WithUserAgent sets the User-Agent header for all outgoing requests.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithHTTPClient replaces the default 30s-timeout HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithCacheDir overrides the license text cache location.
func WithCacheDir(dir string) Option {
	return func(o *options) { o.cacheDir = dir }
}

// WithCache replaces the default disk-backed license text cache.
func WithCache(c TextCache) Option {
	return func(o *options) { o.cache = c }
}

// WithRegistry replaces the default NuGet registry client.
func WithRegistry(c RegistryClient) Option {
	return func(o *options) { o.registry = c }
}

// WithFallback replaces the default ecosyste.ms fallback metadata client.
func WithFallback(c FallbackClient) Option {
	return func(o *options) { o.fallback = c }
}

// WithoutFallback disables fallback metadata lookups entirely.
func WithoutFallback() Option {
	return func(o *options) { o.noFallback = true }
}

// WithFetcher replaces the default license text fetcher.
func WithFetcher(f TextFetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithLogger sets the logger; the package default is used otherwise.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithConcurrency sets the number of packages resolved in parallel.
// Resolution is sequential by default.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

func buildOptions(opts []Option) options {
	o := options{userAgent: defaultUserAgent, concurrency: 1}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New creates a Resolver wired to the public NuGet registry, the SPDX
// license-list text repository, and a user-scoped disk cache.
//
// Fallback metadata lookups through ecosyste.ms are enabled unless disabled
// via WithoutFallback or the LICENSESCAN_NO_FALLBACK environment variable.
// Endpoint URLs honor the LICENSESCAN_REGISTRY_URL, LICENSESCAN_SPDX_URL and
// LICENSESCAN_FLATCONTAINER_URL environment variables; the cache location
// honors LICENSESCAN_CACHE_DIR unless WithCacheDir is given.
func New(opts ...Option) (*Resolver, error) {
	o := buildOptions(opts)

	logger := o.logger
	if logger == nil {
		logger = log.Default()
	}

	registry := o.registry
	if registry == nil {
		registry = newNuGetRegistryClient(
			envOr("LICENSESCAN_REGISTRY_URL", defaultRegistrationBase),
			o.userAgent, o.httpClient)
	}

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = newFetcher(
			envOr("LICENSESCAN_SPDX_URL", defaultSPDXTextBase),
			o.userAgent, o.httpClient)
	}

	cache := o.cache
	if cache == nil {
		cacheDir := o.cacheDir
		if cacheDir == "" {
			cacheDir = os.Getenv("LICENSESCAN_CACHE_DIR")
		}
		var err error
		if cache, err = licensecache.New(cacheDir, logger); err != nil {
			return nil, err
		}
	}

	fallback := o.fallback
	if fallback == nil && !o.noFallback && !fallbackDisabled() {
		fb, err := newEcosystemsFallback(o.userAgent)
		if err != nil {
			logger.Warn("ecosyste.ms fallback unavailable", "error", err)
		} else {
			fallback = fb
		}
	}

	concurrency := o.concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Resolver{
		registry:    registry,
		fallback:    fallback,
		fetcher:     fetcher,
		cache:       cache,
		logger:      logger,
		flatBaseURL: envOr("LICENSESCAN_FLATCONTAINER_URL", defaultFlatContainerBase),
		concurrency: concurrency,
		retryDelay:  time.Second,
	}, nil
}

// fallbackDisabled checks the environment kill switch for fallback lookups.
func fallbackDisabled() bool {
	v := os.Getenv("LICENSESCAN_NO_FALLBACK")
	return v == "true" || v == "1" || v == "yes"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
