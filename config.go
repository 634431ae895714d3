package props

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-props/pkg/activity"
)

const (
	DefaultResolverTimeout    = 15 * time.Second
	DefaultMaxConcurrency     = 8
	DefaultAuthPlaceholder    = "Please connect your account first"
	DefaultMissingPlaceholder = "Please select %s first"
	DefaultTimeoutPlaceholder = "Loading options timed out, try again"
	DefaultInvalidPlaceholder = "Options could not be loaded"
)

// Config holds the tunables of a resolution session. Zero values fall back
// to the defaults above.
type Config struct {
	ResolverTimeout    time.Duration `json:"resolver_timeout" yaml:"resolver_timeout"`
	MaxConcurrency     int           `json:"max_concurrency" yaml:"max_concurrency"`
	AuthPlaceholder    string        `json:"auth_placeholder" yaml:"auth_placeholder"`
	MissingPlaceholder string        `json:"missing_placeholder" yaml:"missing_placeholder"`
	TimeoutPlaceholder string        `json:"timeout_placeholder" yaml:"timeout_placeholder"`
	// ErrorPlaceholder replaces resolver error messages when set; otherwise
	// the placeholder is derived from the error.
	ErrorPlaceholder string `json:"error_placeholder" yaml:"error_placeholder"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		ResolverTimeout:    DefaultResolverTimeout,
		MaxConcurrency:     DefaultMaxConcurrency,
		AuthPlaceholder:    DefaultAuthPlaceholder,
		MissingPlaceholder: DefaultMissingPlaceholder,
		TimeoutPlaceholder: DefaultTimeoutPlaceholder,
	}
}

// Validate rejects negative limits.
func (c Config) Validate() error {
	var errs []error
	if c.ResolverTimeout < 0 {
		errs = append(errs, fmt.Errorf("props: resolver_timeout must not be negative"))
	}
	if c.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("props: max_concurrency must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.ResolverTimeout <= 0 {
		c.ResolverTimeout = defaults.ResolverTimeout
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = defaults.MaxConcurrency
	}
	if strings.TrimSpace(c.AuthPlaceholder) == "" {
		c.AuthPlaceholder = defaults.AuthPlaceholder
	}
	if strings.TrimSpace(c.MissingPlaceholder) == "" {
		c.MissingPlaceholder = defaults.MissingPlaceholder
	}
	if strings.TrimSpace(c.TimeoutPlaceholder) == "" {
		c.TimeoutPlaceholder = defaults.TimeoutPlaceholder
	}
	return c
}

func (c Config) missingPlaceholder(refresher string, label string) string {
	if refresher == AuthKey {
		return c.AuthPlaceholder
	}
	if strings.Contains(c.MissingPlaceholder, "%s") {
		return fmt.Sprintf(c.MissingPlaceholder, label)
	}
	return c.MissingPlaceholder
}

func (c Config) errorPlaceholder(err error) string {
	switch classifyError(err) {
	case ErrorKindResolverTimeout:
		return c.TimeoutPlaceholder
	case ErrorKindMalformedNestedResult, ErrorKindMalformedOptions:
		return DefaultInvalidPlaceholder
	}
	if c.ErrorPlaceholder != "" {
		return c.ErrorPlaceholder
	}
	var resolverErr *ResolverError
	if errors.As(err, &resolverErr) && resolverErr.Err != nil && !resolverErr.Panic {
		return resolverErr.Err.Error()
	}
	return DefaultInvalidPlaceholder
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	config    Config
	id        string
	actorID   string
	cache     Cache
	logger    Logger
	hooks     activity.Hooks
	listeners []func(View)
}

func applyOptions(opts []SessionOption) sessionConfig {
	cfg := sessionConfig{config: DefaultConfig()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.cache == nil {
		cfg.cache = NewMemoryCache()
	}
	if cfg.logger == nil {
		cfg.logger = noopLogger{}
	}
	return cfg
}

// WithConfig replaces the session configuration.
func WithConfig(config Config) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.config = config
	}
}

// WithResolverTimeout bounds the execution time of every resolver call.
func WithResolverTimeout(timeout time.Duration) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.config.ResolverTimeout = timeout
	}
}

// WithMaxConcurrency bounds how many resolvers run at once within a pass.
func WithMaxConcurrency(limit int) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.config.MaxConcurrency = limit
	}
}

// WithCache replaces the per-session cache.
func WithCache(cache Cache) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.cache = cache
	}
}

// WithLogger attaches a resolution logger.
func WithLogger(logger Logger) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.logger = logger
	}
}

// WithSessionID overrides the generated session identifier.
func WithSessionID(id string) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.id = strings.TrimSpace(id)
	}
}

// WithActor records the actor emitted with activity events.
func WithActor(actorID string) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.actorID = strings.TrimSpace(actorID)
	}
}

// WithViewListener registers fn to receive the view after every completed
// pass. Listeners run on the goroutine that drove the pass.
func WithViewListener(fn func(View)) SessionOption {
	return func(cfg *sessionConfig) {
		if fn != nil {
			cfg.listeners = append(cfg.listeners, fn)
		}
	}
}

// WithActivityHooks attaches activity hooks to the session. Hooks are cloned
// and nil entries dropped.
func WithActivityHooks(hooks activity.Hooks) SessionOption {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *sessionConfig) {
		cfg.hooks = normalized
	}
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}
