package config

import (
	"time"

	"github.com/TypeTerrors/gonfig"
)

type Config struct {
	Fusion     FusionConfig     `yaml:"fusion"`
	Display    DisplayConfig    `yaml:"display"`
	Generation GenerationConfig `yaml:"generation"`
	Api        ApiConfig        `yaml:"api"`
	Log        LogConfig        `yaml:"log"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
}

type FusionConfig struct {
	ApiKey       string `yaml:"api_key"`
	SecretKey    string `yaml:"secret_key"`
	ApiBase      string `yaml:"api_base"`
	StylesBase   string `yaml:"styles_base"`
	Scale        int    `yaml:"scale"`
	Tries        int    `yaml:"tries"`
	RetryDelayMs int    `yaml:"retry_delay_ms"`
	PollPeriodMs int    `yaml:"poll_period_ms"`
	TimeoutSec   int    `yaml:"timeout_sec"`
}

type DisplayConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type GenerationConfig struct {
	Prompt         string `yaml:"prompt"`
	NegativePrompt string `yaml:"negative_prompt"`
	StyleIndex     int    `yaml:"style_index"`
	Width          int    `yaml:"width"`
	Height         int    `yaml:"height"`
	Auto           bool   `yaml:"auto"`
	AutoPeriodSec  int    `yaml:"auto_period_sec"`
	TickIntervalMs int    `yaml:"tick_interval_ms"`
}

type ApiConfig struct {
	Port           string `yaml:"port"`
	AllowedOrigins string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level     string `yaml:"level"`
	Formatter string `yaml:"formatter"`
}

type SnapshotConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	File    string `yaml:"file"`
}

const (
	MinAutoPeriod       = time.Minute
	DefaultTickInterval = 500 * time.Millisecond
	DefaultTimeout      = 60 * time.Second
)

func Load(file, dotenv string) (Config, error) {
	return gonfig.Load[Config](
		gonfig.WithConfigFile(file),
		gonfig.WithDotenv(dotenv), // ignored if missing
	)
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (f FusionConfig) RetryDelay() time.Duration { return ms(f.RetryDelayMs) }

func (f FusionConfig) PollPeriod() time.Duration { return ms(f.PollPeriodMs) }

func (f FusionConfig) Timeout() time.Duration {
	if f.TimeoutSec <= 0 {
		return DefaultTimeout
	}
	return time.Duration(f.TimeoutSec) * time.Second
}

// AutoPeriod is the automatic generation interval, never shorter than a minute.
// It is zero when automatic generation is off.
func (g GenerationConfig) AutoPeriod() time.Duration {
	if !g.Auto {
		return 0
	}
	return max(time.Duration(g.AutoPeriodSec)*time.Second, MinAutoPeriod)
}

func (g GenerationConfig) TickInterval() time.Duration {
	if g.TickIntervalMs <= 0 {
		return DefaultTickInterval
	}
	return ms(g.TickIntervalMs)
}
