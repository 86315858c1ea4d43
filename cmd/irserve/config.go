package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/effectus/irkit/session"
	"github.com/effectus/irkit/sink"
	"github.com/effectus/irkit/store"
	"gopkg.in/yaml.v3"
)

type serverConfig struct {
	HTTP      httpConfig    `yaml:"http" json:"http"`
	API       apiConfig     `yaml:"api" json:"api"`
	Log       logConfig     `yaml:"log" json:"log"`
	Documents store.Config  `yaml:"documents" json:"documents"`
	Session   sessionConfig `yaml:"session" json:"session"`
	Sink      sink.Config   `yaml:"sink" json:"sink"`
	RateLimit rateConfig    `yaml:"rate_limit" json:"rate_limit"`
	Routes    []routeConfig `yaml:"routes" json:"routes"`
}

type httpConfig struct {
	Addr           string `yaml:"addr" json:"addr"`
	ReadOnly       *bool  `yaml:"read_only" json:"read_only"`
	TrustForwarded *bool  `yaml:"trust_forwarded" json:"trust_forwarded"`
}

type apiConfig struct {
	Auth      string `yaml:"auth" json:"auth"`             // token or disabled
	Token     string `yaml:"token" json:"token"`           // comma-separated write tokens
	ReadToken string `yaml:"read_token" json:"read_token"` // comma-separated read tokens
}

type logConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

type sessionConfig struct {
	Store     string              `yaml:"store" json:"store"` // memory or redis
	Cookie    string              `yaml:"cookie" json:"cookie"`
	TTL       string              `yaml:"ttl" json:"ttl"`
	Secure    *bool               `yaml:"secure" json:"secure"`
	ClaimKeys []string            `yaml:"claim_keys" json:"claim_keys"`
	Redis     session.RedisConfig `yaml:"redis" json:"redis"`
}

type rateConfig struct {
	PerMinute *int `yaml:"per_minute" json:"per_minute"`
	Burst     *int `yaml:"burst" json:"burst"`
}

// settings are the effective server options after flags and the config
// file are merged.
type settings struct {
	configPath     string
	httpAddr       string
	readOnly       bool
	trustForwarded bool
	apiAuth        string
	apiToken       string
	apiReadToken   string
	logLevel       string
	logFormat      string
	storeKind      string
	storeDir       string
	watch          bool
	sessionStore   string
	sessionCookie  string
	sessionTTL     time.Duration
	secureCookie   bool
	claimKeys      string
	rateLimit      int
	rateBurst      int

	documents store.Config
	redis     session.RedisConfig
	sink      sink.Config
	routes    []routeConfig
}

func (s *settings) bind(fs *flag.FlagSet) {
	fs.StringVar(&s.configPath, "config", "", "Path to a YAML or JSON config file")
	fs.StringVar(&s.httpAddr, "http-addr", ":8080", "HTTP listen address")
	fs.BoolVar(&s.readOnly, "read-only", false, "Reject document writes through the API")
	fs.BoolVar(&s.trustForwarded, "trust-forwarded", false, "Key rate limits by X-Forwarded-For (only behind a trusted proxy)")
	fs.StringVar(&s.apiAuth, "api-auth", "token", "API auth mode (token, disabled)")
	fs.StringVar(&s.apiToken, "api-token", "", "Write token for /api endpoints (comma-separated)")
	fs.StringVar(&s.apiReadToken, "api-read-token", "", "Read-only token for /api endpoints (comma-separated)")
	fs.StringVar(&s.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&s.logFormat, "log-format", "json", "Log format (json or console)")
	fs.StringVar(&s.storeKind, "store", "dir", "Document store (memory, dir, postgres, s3)")
	fs.StringVar(&s.storeDir, "dir", "pages", "Document directory for the dir store")
	fs.BoolVar(&s.watch, "watch", false, "Reload documents when files in the dir store change")
	fs.StringVar(&s.sessionStore, "session-store", "memory", "Session store (memory or redis)")
	fs.StringVar(&s.sessionCookie, "session-cookie", "ir_session", "Session cookie name")
	fs.DurationVar(&s.sessionTTL, "session-ttl", 24*time.Hour, "Session lifetime")
	fs.BoolVar(&s.secureCookie, "secure-cookie", false, "Mark the session cookie Secure")
	fs.StringVar(&s.claimKeys, "claim-keys", strings.Join(session.DefaultClaimKeys, ","), "Session locals only /api/session/claims may set (comma-separated)")
	fs.IntVar(&s.rateLimit, "rate-limit", 0, "Requests per minute per client (0 disables)")
	fs.IntVar(&s.rateBurst, "rate-burst", 0, "Burst size for the rate limit (defaults to the limit)")
}

func loadServerConfig(path string) (*serverConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg serverConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config yaml: %w", err)
		}
	}
	return &cfg, nil
}

// apply copies config values into s for every flag that was not set on the
// command line.
func (s *settings) apply(cfg *serverConfig, setFlags map[string]bool) error {
	if cfg == nil {
		return nil
	}

	if cfg.HTTP.Addr != "" && !setFlags["http-addr"] {
		s.httpAddr = cfg.HTTP.Addr
	}
	if cfg.HTTP.ReadOnly != nil && !setFlags["read-only"] {
		s.readOnly = *cfg.HTTP.ReadOnly
	}
	if cfg.HTTP.TrustForwarded != nil && !setFlags["trust-forwarded"] {
		s.trustForwarded = *cfg.HTTP.TrustForwarded
	}

	if cfg.API.Auth != "" && !setFlags["api-auth"] {
		s.apiAuth = cfg.API.Auth
	}
	if cfg.API.Token != "" && !setFlags["api-token"] {
		s.apiToken = cfg.API.Token
	}
	if cfg.API.ReadToken != "" && !setFlags["api-read-token"] {
		s.apiReadToken = cfg.API.ReadToken
	}

	if cfg.Log.Level != "" && !setFlags["log-level"] {
		s.logLevel = cfg.Log.Level
	}
	if cfg.Log.Format != "" && !setFlags["log-format"] {
		s.logFormat = cfg.Log.Format
	}

	if cfg.Documents.Kind != "" && !setFlags["store"] {
		s.storeKind = cfg.Documents.Kind
	}
	if cfg.Documents.Dir != "" && !setFlags["dir"] {
		s.storeDir = cfg.Documents.Dir
	}
	if cfg.Documents.Watch && !setFlags["watch"] {
		s.watch = true
	}
	s.documents = cfg.Documents

	if cfg.Session.Store != "" && !setFlags["session-store"] {
		s.sessionStore = cfg.Session.Store
	}
	if cfg.Session.Cookie != "" && !setFlags["session-cookie"] {
		s.sessionCookie = cfg.Session.Cookie
	}
	if cfg.Session.TTL != "" && !setFlags["session-ttl"] {
		ttl, err := time.ParseDuration(cfg.Session.TTL)
		if err != nil {
			return fmt.Errorf("session.ttl: %w", err)
		}
		s.sessionTTL = ttl
	}
	if cfg.Session.Secure != nil && !setFlags["secure-cookie"] {
		s.secureCookie = *cfg.Session.Secure
	}
	if len(cfg.Session.ClaimKeys) > 0 && !setFlags["claim-keys"] {
		s.claimKeys = strings.Join(cfg.Session.ClaimKeys, ",")
	}
	s.redis = cfg.Session.Redis

	if cfg.RateLimit.PerMinute != nil && !setFlags["rate-limit"] {
		s.rateLimit = *cfg.RateLimit.PerMinute
	}
	if cfg.RateLimit.Burst != nil && !setFlags["rate-burst"] {
		s.rateBurst = *cfg.RateLimit.Burst
	}

	s.sink = cfg.Sink
	s.routes = cfg.Routes
	return nil
}

// storeConfig is the document store configuration with flag overrides
// applied.
func (s *settings) storeConfig() store.Config {
	cfg := s.documents
	cfg.Kind = s.storeKind
	cfg.Dir = s.storeDir
	cfg.Watch = s.watch
	return cfg
}

// sessionClaimKeys splits the configured claim keys.
func (s *settings) sessionClaimKeys() []string {
	var keys []string
	for _, k := range strings.Split(s.claimKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// parseSettings parses args and merges the config file named by -config.
func parseSettings(name string, args []string) (*settings, error) {
	s := &settings{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	s.bind(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	if s.configPath != "" {
		cfg, err := loadServerConfig(s.configPath)
		if err != nil {
			return nil, err
		}
		if err := s.apply(cfg, setFlags); err != nil {
			return nil, err
		}
	}
	return s, nil
}
