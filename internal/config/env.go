package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HEARTH_"

// applyEnv overrides cfg from HEARTH_* variables. Malformed values are
// KindConfig errors rather than silently ignored.
func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	str("PROVIDER", &cfg.Endpoint.Provider)
	str("BASE_URL", &cfg.Endpoint.BaseURL)
	str("MODEL", &cfg.Endpoint.Model)
	str("API_KEY", &cfg.Endpoint.APIKey)
	str("SANDBOX_MODE", &cfg.Sandbox.Mode)
	str("DOCKER_IMAGE", &cfg.Sandbox.DockerImage)
	str("JOURNAL", &cfg.Journal.Path)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FILE", &cfg.Log.File)

	if err := envDuration(getenv, "CMD_TIMEOUT", &cfg.Sandbox.CmdTimeout); err != nil {
		return err
	}
	if err := envDuration(getenv, "FETCH_TIMEOUT", &cfg.Tools.FetchTimeout); err != nil {
		return err
	}
	if v := getenv(EnvPrefix + "MAX_OUTPUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return engine.Errorf(engine.KindConfig, "env", "%sMAX_OUTPUT: %v", EnvPrefix, err)
		}
		cfg.Tools.MaxOutput = n
	}
	if v := getenv(EnvPrefix + "VERBOSE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return engine.Errorf(engine.KindConfig, "env", "%sVERBOSE: %v", EnvPrefix, err)
		}
		cfg.Tools.Verbose = b
	}
	if v := getenv(EnvPrefix + "IGNORE"); v != "" {
		cfg.Tools.IgnorePatterns = splitList(v)
	}

	cfg.Endpoint.Provider = strings.ToLower(cfg.Endpoint.Provider)
	if cfg.Endpoint.APIKey == "" {
		// Fall back to the vendor variables most users already export.
		switch cfg.Endpoint.Provider {
		case ProviderOpenAI:
			cfg.Endpoint.APIKey = getenv("OPENAI_API_KEY")
		case ProviderAnthropic:
			cfg.Endpoint.APIKey = getenv("ANTHROPIC_API_KEY")
		}
	}
	return nil
}

// envDuration accepts "90s" style values or a bare number of seconds.
func envDuration(getenv func(string) string, key string, dst *Duration) error {
	v := getenv(EnvPrefix + key)
	if v == "" {
		return nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = Duration(secs * float64(time.Second))
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return engine.NewError(engine.KindConfig, "env", fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
	}
	*dst = Duration(d)
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
