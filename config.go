package warmcache

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/warmcache/source"
)

// Config is process configuration from the environment. A .env file is
// loaded when present (local development only).
type Config struct {
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	SourceDSN string `mapstructure:"SOURCE_DSN"`

	AuditPath  string `mapstructure:"AUDIT_PATH"`
	PolicyPath string `mapstructure:"POLICY_PATH"`

	InfraBaseURL string `mapstructure:"INFRA_BASE_URL"`
	InfraToken   string `mapstructure:"INFRA_TOKEN"`
	ActiveEnv    string `mapstructure:"ACTIVE_ENV"`
}

func LoadConfig() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, errors.New("failed to load .env")
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	keys := []string{
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"SOURCE_DSN",
		"AUDIT_PATH", "POLICY_PATH",
		"INFRA_BASE_URL", "INFRA_TOKEN", "ACTIVE_ENV",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("AUDIT_PATH", "./data/audit")
	v.SetDefault("POLICY_PATH", "./warmcache.yaml")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

// CategoryPolicy is one category's compiled warming policy: where its rows
// live, what a well-formed row must carry, and how long records live.
type CategoryPolicy struct {
	Source    source.TableSpec
	TTL       TTLPolicy
	Required  []string
	MinWarmed int64
}

// Policy is the operator-authored warming policy, compiled from YAML.
type Policy struct {
	Categories map[Category]CategoryPolicy
	Thresholds Thresholds

	BatchSize   int
	MaxRetries  int
	MaxParallel int

	QueryTimeout   time.Duration
	WriteTimeout   time.Duration
	GracePeriod    time.Duration
	MaxSampleBytes int
}

type policyFile struct {
	Defaults struct {
		BatchSize    int    `yaml:"batchSize"`
		MaxRetries   int    `yaml:"maxRetries"`
		MaxParallel  int    `yaml:"maxParallel"`
		QueryTimeout string `yaml:"queryTimeout"`
		WriteTimeout string `yaml:"writeTimeout"`
		GracePeriod  string `yaml:"gracePeriod"`
	} `yaml:"defaults"`

	Categories map[string]categoryYAML `yaml:"categories"`

	Validation struct {
		MinTotalKeys     int64   `yaml:"minTotalKeys"`
		MaxFragmentation float64 `yaml:"maxFragmentation"`
		MaxSampleBytes   int     `yaml:"maxSampleBytes"`
	} `yaml:"validation"`
}

type categoryYAML struct {
	Table            string   `yaml:"table"`
	IDColumn         string   `yaml:"idColumn"`
	PopularityColumn string   `yaml:"popularityColumn"`
	Payload          []string `yaml:"payload"`
	Required         []string `yaml:"required"`
	BaseTTL          string   `yaml:"baseTTL"`
	PopularityBonus  string   `yaml:"popularityBonus"`
	MaxTTL           string   `yaml:"maxTTL"`
	MinWarmed        int64    `yaml:"minWarmed"`
}

func LoadPolicy(path string) (*Policy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	var pf policyFile
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if len(pf.Categories) == 0 {
		return nil, errors.New("policy: no categories defined")
	}

	p := &Policy{
		Categories:     make(map[Category]CategoryPolicy, len(pf.Categories)),
		BatchSize:      pf.Defaults.BatchSize,
		MaxRetries:     pf.Defaults.MaxRetries,
		MaxParallel:    pf.Defaults.MaxParallel,
		MaxSampleBytes: pf.Validation.MaxSampleBytes,
		Thresholds: Thresholds{
			MinTotalKeys:     pf.Validation.MinTotalKeys,
			MaxFragmentation: pf.Validation.MaxFragmentation,
			MinPerCategory:   make(map[Category]int64),
		},
	}

	if p.QueryTimeout, err = parseDur(pf.Defaults.QueryTimeout, 10*time.Second); err != nil {
		return nil, fmt.Errorf("policy: queryTimeout: %w", err)
	}
	if p.WriteTimeout, err = parseDur(pf.Defaults.WriteTimeout, 5*time.Second); err != nil {
		return nil, fmt.Errorf("policy: writeTimeout: %w", err)
	}
	if p.GracePeriod, err = parseDur(pf.Defaults.GracePeriod, 2*time.Minute); err != nil {
		return nil, fmt.Errorf("policy: gracePeriod: %w", err)
	}

	for name, cy := range pf.Categories {
		cat, err := ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("policy: %w", err)
		}
		if cy.Table == "" || cy.IDColumn == "" {
			return nil, fmt.Errorf("policy: category %s: table and idColumn are required", cat)
		}

		base, err := parseDur(cy.BaseTTL, 0)
		if err != nil || base <= 0 {
			return nil, fmt.Errorf("policy: category %s: baseTTL is required and must be positive", cat)
		}
		bonus, err := parseDur(cy.PopularityBonus, 0)
		if err != nil {
			return nil, fmt.Errorf("policy: category %s: popularityBonus: %w", cat, err)
		}
		max, err := parseDur(cy.MaxTTL, base)
		if err != nil {
			return nil, fmt.Errorf("policy: category %s: maxTTL: %w", cat, err)
		}
		ttl := TTLPolicy{Base: base, Bonus: bonus, Max: max}
		if err := ttl.Validate(); err != nil {
			return nil, fmt.Errorf("policy: category %s: %w", cat, err)
		}

		p.Categories[cat] = CategoryPolicy{
			Source: source.TableSpec{
				Table:            cy.Table,
				IDColumn:         cy.IDColumn,
				PopularityColumn: cy.PopularityColumn,
				PayloadColumns:   cy.Payload,
			},
			TTL:       ttl,
			Required:  cy.Required,
			MinWarmed: cy.MinWarmed,
		}
		if cy.MinWarmed > 0 {
			p.Thresholds.MinPerCategory[cat] = cy.MinWarmed
		}
	}
	return p, nil
}

func parseDur(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// TableSpecs keys the source mapping by category name for the reader.
func (p *Policy) TableSpecs() map[string]source.TableSpec {
	out := make(map[string]source.TableSpec, len(p.Categories))
	for cat, cp := range p.Categories {
		out[string(cat)] = cp.Source
	}
	return out
}

func (p *Policy) TTLPolicies() map[Category]TTLPolicy {
	out := make(map[Category]TTLPolicy, len(p.Categories))
	for cat, cp := range p.Categories {
		out[cat] = cp.TTL
	}
	return out
}

func (p *Policy) RequiredFields() map[Category][]string {
	out := make(map[Category][]string, len(p.Categories))
	for cat, cp := range p.Categories {
		if len(cp.Required) > 0 {
			out[cat] = cp.Required
		}
	}
	return out
}

// CategoryNames returns the configured categories in canonical order.
func (p *Policy) CategoryNames() []Category {
	out := make([]Category, 0, len(p.Categories))
	for _, cat := range Categories() {
		if _, ok := p.Categories[cat]; ok {
			out = append(out, cat)
		}
	}
	return out
}
