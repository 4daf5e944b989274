package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LISTINGD_"

// Config is the listingd runtime configuration.
type Config struct {
	ListenAddress string       `toml:"ListenAddress" yaml:"listen"`
	DataDir       string       `toml:"DataDir" yaml:"data_dir"`
	Environment   string       `toml:"Environment" yaml:"environment"`
	Storage       Storage      `toml:"storage" yaml:"storage"`
	Index         Index        `toml:"index" yaml:"index"`
	Log           Log          `toml:"log" yaml:"log"`
	RPC           RPC          `toml:"rpc" yaml:"rpc"`
	Telemetry     Telemetry    `toml:"telemetry" yaml:"telemetry"`
	Platform      Platform     `toml:"platform" yaml:"platform"`
	Genesis       []Allocation `toml:"genesis" yaml:"genesis"`
}

// Defaults returns the configuration used when a field is left unset.
func Defaults() Config {
	return Config{
		ListenAddress: ":8645",
		DataDir:       "./listing-data",
		Environment:   "local",
		Storage:       Storage{Backend: "leveldb"},
		Log:           Log{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
		RPC: RPC{
			RequestsPerSecond: 20,
			Burst:             40,
			StreamBuffer:      64,
			ReadTimeout:       Duration{15 * time.Second},
			WriteTimeout:      Duration{15 * time.Second},
			ShutdownTimeout:   Duration{10 * time.Second},
		},
		Telemetry: Telemetry{SampleRatio: 1},
		Platform: Platform{
			FeeBasisPoints:     10,
			MinListingDuration: 3_600,
			MaxListingDuration: 2_592_000,
			MinTradeAmount:     1,
			MaxListingsPerUser: 20,
		},
	}
}

// Load reads the file at path on top of Defaults, applies LISTINGD_*
// environment overrides and validates the result. Files ending in .yaml or
// .yml are decoded as YAML, everything else as TOML. An empty path loads
// defaults and the environment only. A .env file next to the config file or
// in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	loadDotEnv(path)
	if strings.TrimSpace(path) != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	default:
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("config file %s has unknown keys: %v", path, undecoded)
		}
	}
	return nil
}

func loadDotEnv(path string) {
	candidates := []string{".env"}
	if dir := filepath.Dir(path); strings.TrimSpace(path) != "" && dir != "." {
		candidates = append([]string{filepath.Join(dir, ".env")}, candidates...)
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			// Load never overrides variables already present in the process.
			_ = godotenv.Load(candidate)
		}
	}
}

// applyEnvOverrides overwrites fields whose LISTINGD_* variable is set.
func applyEnvOverrides(cfg *Config) error {
	setString(&cfg.ListenAddress, "LISTEN")
	setString(&cfg.DataDir, "DATA_DIR")
	setString(&cfg.Environment, "ENV")
	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setString(&cfg.Index.DSN, "INDEX_DSN")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.File, "LOG_FILE")
	setString(&cfg.Telemetry.Endpoint, "OTLP_ENDPOINT")
	setString(&cfg.Platform.Authority, "PLATFORM_AUTHORITY")
	setString(&cfg.Platform.FeeCollector, "PLATFORM_FEE_COLLECTOR")

	if v, ok := lookup("RATE_LIMIT_RPS"); ok {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT_RPS: %w", EnvPrefix, err)
		}
		cfg.RPC.RequestsPerSecond = parsed
	}
	if v, ok := lookup("RATE_LIMIT_BURST"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT_BURST: %w", EnvPrefix, err)
		}
		cfg.RPC.Burst = parsed
	}
	for name, dst := range map[string]*bool{
		"OTLP_INSECURE":            &cfg.Telemetry.Insecure,
		"OTLP_METRICS":             &cfg.Telemetry.Metrics,
		"OTLP_TRACES":              &cfg.Telemetry.Traces,
		"PLATFORM_AUTO_INITIALIZE": &cfg.Platform.AutoInitialize,
	} {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = parsed
	}
	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func setString(dst *string, name string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}
