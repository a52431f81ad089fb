// Package config carrega a configuração do gateway: defaults, arquivo YAML
// opcional, .env e variáveis GATEWAY_* (nessa ordem de precedência crescente).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

const EnvPrefix = "GATEWAY"

const (
	StoreRedis  = "redis"
	StoreMemory = "memory"

	StatsNone       = "none"
	StatsMemory     = "memory"
	StatsRedis      = "redis"
	StatsPrometheus = "prometheus"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Upstream    UpstreamConfig    `mapstructure:"upstream"`
	Redis       RedisConfig       `mapstructure:"redis"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Breaker     BreakerConfig     `mapstructure:"breaker"`
	Stats       StatsConfig       `mapstructure:"stats"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type UpstreamConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RateLimitConfig struct {
	Enabled       bool                 `mapstructure:"enabled"`
	Store         string               `mapstructure:"store"`
	FailurePolicy domain.FailurePolicy `mapstructure:"failure_policy"`
	StoreTimeout  time.Duration        `mapstructure:"store_timeout"`
	KeyPrefix     string               `mapstructure:"key_prefix"`
	KeyHeader     string               `mapstructure:"key_header"`
	TrustXFF      bool                 `mapstructure:"trust_xff"`
	JWTSecret     string               `mapstructure:"jwt_secret"`
	AddHeaders    bool                 `mapstructure:"add_headers"`
	SkipPaths     []string             `mapstructure:"skip_paths"`
	Policies      []PolicyConfig       `mapstructure:"policies"`
}

// PolicyConfig aceita um preset (strict, moderate, relaxed, auth) ou
// max_requests + window. Campos explícitos sobrescrevem o preset.
type PolicyConfig struct {
	Route         string        `mapstructure:"route" yaml:"route"`
	Preset        string        `mapstructure:"preset" yaml:"preset,omitempty"`
	MaxRequests   int           `mapstructure:"max_requests" yaml:"max_requests,omitempty"`
	Window        time.Duration `mapstructure:"window" yaml:"window,omitempty"`
	WindowSeconds int           `mapstructure:"window_seconds" yaml:"window_seconds,omitempty"`
	Message       string        `mapstructure:"message" yaml:"message,omitempty"`
}

type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
	HalfOpenRequests    uint32        `mapstructure:"half_open_requests"`
}

type StatsConfig struct {
	Backend   string        `mapstructure:"backend"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
	Bucket    string        `mapstructure:"bucket"`
	TrackKeys bool          `mapstructure:"track_keys"`
}

type ConcurrencyConfig struct {
	Max            int           `mapstructure:"max"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("upstream.url", "")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 2*time.Second)
	v.SetDefault("redis.read_timeout", 500*time.Millisecond)
	v.SetDefault("redis.write_timeout", 500*time.Millisecond)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.store", StoreRedis)
	v.SetDefault("ratelimit.store_timeout", 100*time.Millisecond)
	v.SetDefault("ratelimit.key_prefix", "ratelimit")
	v.SetDefault("ratelimit.key_header", "")
	v.SetDefault("ratelimit.trust_xff", false)
	v.SetDefault("ratelimit.jwt_secret", "")
	v.SetDefault("ratelimit.add_headers", true)
	v.SetDefault("ratelimit.skip_paths", []string{"/static/"})
	// failure_policy não tem default: precisa ser escolhida.
	_ = v.BindEnv("ratelimit.failure_policy")

	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.consecutive_failures", 5)
	v.SetDefault("breaker.open_timeout", 5*time.Second)
	v.SetDefault("breaker.half_open_requests", 1)

	v.SetDefault("stats.backend", StatsNone)
	v.SetDefault("stats.prefix", "ratelimit:stats")
	v.SetDefault("stats.ttl", 24*time.Hour)
	v.SetDefault("stats.bucket", "minute")
	v.SetDefault("stats.track_keys", false)

	v.SetDefault("concurrency.max", 100)
	v.SetDefault("concurrency.acquire_timeout", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load lê a configuração. path vazio usa só defaults + ambiente.
func Load(path string) (*Config, error) {
	// .env é opcional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Upstream.URL) == "" {
		errs = append(errs, errors.New("upstream.url is required"))
	} else if u, err := url.Parse(c.Upstream.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("upstream.url %q is not an absolute URL", c.Upstream.URL))
	}

	switch c.RateLimit.Store {
	case StoreRedis, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("ratelimit.store %q is not supported (want redis or memory)", c.RateLimit.Store))
	}
	if c.RateLimit.Enabled && !c.RateLimit.FailurePolicy.Valid() {
		errs = append(errs, errors.New("ratelimit.failure_policy is required (open or closed)"))
	}
	for i, p := range c.RateLimit.SkipPaths {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("ratelimit.skip_paths[%d] %q must start with /", i, p))
		}
	}
	if c.RateLimit.StoreTimeout <= 0 {
		errs = append(errs, errors.New("ratelimit.store_timeout must be > 0"))
	}
	if _, err := c.PolicySet(); err != nil {
		errs = append(errs, err)
	}

	switch c.Stats.Backend {
	case StatsNone, StatsMemory, StatsRedis, StatsPrometheus:
	default:
		errs = append(errs, fmt.Errorf("stats.backend %q is not supported", c.Stats.Backend))
	}
	if c.Stats.Backend == StatsRedis && strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("redis.addr is required when stats.backend=redis"))
	}
	if c.RateLimit.Store == StoreRedis && strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("redis.addr is required when ratelimit.store=redis"))
	}

	if c.Concurrency.Max < 0 {
		errs = append(errs, errors.New("concurrency.max must be >= 0"))
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not supported (want json or console)", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// PolicySet monta o conjunto imutável de políticas. Sem políticas
// configuradas, aplica o preset moderate a todas as rotas.
func (c *Config) PolicySet() (domain.PolicySet, error) {
	entries := c.RateLimit.Policies
	if len(entries) == 0 {
		entries = []PolicyConfig{{Route: domain.CatchAllPattern, Preset: "moderate"}}
	}

	policies := make([]domain.Policy, 0, len(entries))
	for i, e := range entries {
		p, err := e.Policy()
		if err != nil {
			return domain.PolicySet{}, fmt.Errorf("ratelimit.policies[%d]: %w", i, err)
		}
		policies = append(policies, p)
	}
	return domain.NewPolicySet(policies...)
}

func (e PolicyConfig) Policy() (domain.Policy, error) {
	p := domain.Policy{RoutePattern: strings.TrimSpace(e.Route)}
	if e.Preset != "" {
		var err error
		if p, err = domain.Preset(e.Preset, p.RoutePattern); err != nil {
			return domain.Policy{}, err
		}
	}

	if e.MaxRequests != 0 {
		p.MaxRequests = e.MaxRequests
	}
	switch {
	case e.Window != 0:
		p.Window = e.Window
	case e.WindowSeconds != 0:
		p.Window = time.Duration(e.WindowSeconds) * time.Second
	}
	if e.Message != "" {
		p.Message = e.Message
	}
	return p, p.Validate()
}
