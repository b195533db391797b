package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Application configuration
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service, used for WebSub callbacks and syndication links (e.g., https://news.example.com)"`
	FeedsFile         string `long:"feeds-file" env:"FEEDS_FILE" default:"./feeds.yml" description:"YAML file listing preset feeds"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for subscription maintenance"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"60" description:"Scheduler interval in seconds"`
	PollInterval      int    `long:"poll-interval" env:"POLL_INTERVAL" default:"300" description:"Polling interval in seconds for feeds without an active push subscription"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Collaborators
	RedisURL     string `long:"redis-url" env:"REDIS_URL" description:"Redis URL for the optional feed response cache"`
	GeminiAPIKey string `long:"gemini-api-key" env:"GEMINI_API_KEY" description:"Gemini API key for LLM summaries (optional, extractive fallback is used without it)"`
	SummaryModel string `long:"summary-model" env:"SUMMARY_MODEL" default:"gemini-2.5-flash" description:"Model used for article summaries"`

	// WebSub
	LeaseSeconds int `long:"lease-seconds" env:"WEBSUB_LEASE_SECONDS" default:"86400" description:"Lease duration requested from WebSub hubs"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"NewsSift/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		Port:              raw.Port,
		BaseUrl:           raw.BaseUrl,
		FeedsFile:         raw.FeedsFile,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		PollInterval:      raw.PollInterval,
		APIAccessKey:      raw.APIAccessKey,
		RedisURL:          raw.RedisURL,
		GeminiAPIKey:      raw.GeminiAPIKey,
		SummaryModel:      raw.SummaryModel,
		LeaseSeconds:      raw.LeaseSeconds,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
