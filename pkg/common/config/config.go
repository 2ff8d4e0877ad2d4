package config

import (
	"fmt"
	"os"
	"time"

	"github.com/blazelabs/lottery-engine/pkg/common/enum"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/imdario/mergo"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

type Config struct {
	Environment string                 `yaml:"environment" validate:"required,oneof=production development"`
	LogLevel    string                 `yaml:"log_level"`
	Engine      EngineCfg              `yaml:"engine" validate:"required"`
	NATS        NATSConfig             `yaml:"nats"`
	KVStore     KVStoreCfg             `yaml:"kvstore" validate:"required"`
	API         APICfg                 `yaml:"api"`
	Upkeep      UpkeepCfg              `yaml:"upkeep"`
	PriceFeed   PriceFeedCfg           `yaml:"price_feed"`
	AltDefaults Distribution           `yaml:"alt_defaults"`
	AltTokens   map[string]AltTokenCfg `yaml:"alt_tokens"`
}

// Distribution holds the payout split of a round pot in whole percents.
// Burn + Dev + Match3 + Match4 + Match5 must equal 100.
type Distribution struct {
	Burn   int `yaml:"burn" validate:"min=0,max=100"`
	Dev    int `yaml:"dev" validate:"min=0,max=100"`
	Match3 int `yaml:"match3" validate:"min=0,max=100"`
	Match4 int `yaml:"match4" validate:"min=0,max=100"`
	Match5 int `yaml:"match5" validate:"min=0,max=100"`
}

func (d Distribution) Sum() int {
	return d.Burn + d.Dev + d.Match3 + d.Match4 + d.Match5
}

func (d Distribution) IsZero() bool {
	return d.Sum() == 0
}

type EngineCfg struct {
	Owner           string       `yaml:"owner" validate:"required"`
	DevWallet       string       `yaml:"dev_wallet" validate:"required"`
	BurnWallet      string       `yaml:"burn_wallet"`
	Treasury        string       `yaml:"treasury"`
	SubscriptionRef string       `yaml:"subscription_ref"`
	TicketPrice     string       `yaml:"ticket_price" validate:"required"`
	RoundDuration   int64        `yaml:"round_duration_seconds" validate:"min=0"`
	RolloverPercent int          `yaml:"rollover_percent" validate:"min=0,max=100"`
	Distribution    Distribution `yaml:"distribution"`
}

// ParsedPrice returns the configured home-token ticket price. Load already
// rejected unparseable values.
func (e EngineCfg) ParsedPrice() decimal.Decimal {
	d, _ := decimal.NewFromString(e.TicketPrice)
	return d
}

func (e EngineCfg) RoundDurationTime() time.Duration {
	return time.Duration(e.RoundDuration) * time.Second
}

type NATSConfig struct {
	Enabled       bool       `yaml:"enabled"`
	URL           string     `yaml:"url"`
	SubjectPrefix string     `yaml:"subject_prefix"`
	Username      string     `yaml:"username"`
	Password      string     `yaml:"password"`
	TLS           NATSTLSCfg `yaml:"tls"`
}

type NATSTLSCfg struct {
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
	CACert     string `yaml:"ca_cert"`
}

type KVStoreCfg struct {
	Type   enum.KVStoreType `yaml:"type" validate:"required,oneof=badger consul"`
	Badger BadgerKVCfg      `yaml:"badger"`
	Consul ConsulKVCfg      `yaml:"consul"`
}

type BadgerKVCfg struct {
	Directory string `yaml:"directory"`
	Prefix    string `yaml:"prefix"`
}

type ConsulKVCfg struct {
	Scheme   string      `yaml:"scheme"`
	Address  string      `yaml:"address"`
	Folder   string      `yaml:"folder"`
	Token    string      `yaml:"token"`
	HttpAuth HttpAuthCfg `yaml:"http_auth"`
}

type HttpAuthCfg struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type APICfg struct {
	Port int `yaml:"port" validate:"min=0,max=65535"`
}

type UpkeepCfg struct {
	Enabled      bool   `yaml:"enabled"`
	Identity     string `yaml:"identity"`
	PollInterval int64  `yaml:"poll_interval_seconds" validate:"min=0"`
}

func (u UpkeepCfg) PollIntervalTime() time.Duration {
	return time.Duration(u.PollInterval) * time.Second
}

type PriceFeedCfg struct {
	USDPrice string `yaml:"usd_price"`
}

type AltTokenCfg struct {
	Price        string       `yaml:"price" validate:"required"`
	Pair         string       `yaml:"pair"`
	Distribution Distribution `yaml:"distribution"`
}

func (a AltTokenCfg) ParsedPrice() decimal.Decimal {
	d, _ := decimal.NewFromString(a.Price)
	return d
}

var defaultEngineDistribution = Distribution{
	Burn:   20,
	Dev:    5,
	Match3: 25,
	Match4: 25,
	Match5: 25,
}

const (
	defaultRolloverPercent = 75
	defaultRoundDuration   = 3600
	defaultPollInterval    = 15
)

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}

	// merge defaults
	if cfg.Engine.Distribution.IsZero() {
		if err := mergo.Merge(&cfg.Engine.Distribution, defaultEngineDistribution); err != nil {
			return cfg, err
		}
	}
	for token, alt := range cfg.AltTokens {
		if alt.Distribution.IsZero() {
			if err := mergo.Merge(&alt.Distribution, cfg.AltDefaults); err != nil {
				return cfg, err
			}
			cfg.AltTokens[token] = alt
		}
	}
	if cfg.Engine.RolloverPercent == 0 {
		cfg.Engine.RolloverPercent = defaultRolloverPercent
	}
	if cfg.Engine.RoundDuration == 0 {
		cfg.Engine.RoundDuration = defaultRoundDuration
	}
	if cfg.Upkeep.PollInterval == 0 {
		cfg.Upkeep.PollInterval = defaultPollInterval
	}

	// validate
	if err := validate.Struct(cfg); err != nil {
		return cfg, err
	}
	if err := checkDistribution("engine", cfg.Engine.Distribution); err != nil {
		return cfg, err
	}
	if err := checkPrice("engine.ticket_price", cfg.Engine.TicketPrice); err != nil {
		return cfg, err
	}
	for token, alt := range cfg.AltTokens {
		if err := checkDistribution("alt_tokens."+token, alt.Distribution); err != nil {
			return cfg, err
		}
		if err := checkPrice("alt_tokens."+token+".price", alt.Price); err != nil {
			return cfg, err
		}
	}
	if len(cfg.AltTokens) > 0 && cfg.Engine.Treasury == "" {
		return cfg, fmt.Errorf("engine.treasury is required when alt_tokens are configured")
	}
	if cfg.PriceFeed.USDPrice != "" {
		if err := checkPrice("price_feed.usd_price", cfg.PriceFeed.USDPrice); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Percent sums are enforced here, at configuration time, never at payout time.
func checkDistribution(scope string, d Distribution) error {
	if d.Sum() != 100 {
		return fmt.Errorf("%s: distribution percentages sum to %d, want 100", scope, d.Sum())
	}
	return nil
}

func checkPrice(scope, raw string) error {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid decimal %q: %w", scope, raw, err)
	}
	if d.IsNegative() {
		return fmt.Errorf("%s: price must not be negative", scope)
	}
	return nil
}
