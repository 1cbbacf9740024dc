package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/captorfm/gqlbroker/internal/app"
)

// envPrefix is stripped from environment variables during config loading (e.g., CAPTOR_LOGIN__PORT → login.port)
const envPrefix = "CAPTOR_"

// defaultConfigPath is read when --config is not given and the file exists.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "captor", "config.toml")
}

// envKey maps CAPTOR_LOGIN__CONNECTIVITY_TIMEOUT onto login.connectivity_timeout.
func envKey(name, value string) (string, any) {
	key := strings.TrimPrefix(name, envPrefix)
	return strings.ToLower(strings.ReplaceAll(key, "__", ".")), value
}

// flagKey maps --login--port onto login.port and --log-level onto log_level.
func flagKey(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, "--", "."), "-", "_")
}

// loadConfigFile loads path into k. A missing file is only an error when the
// path was given explicitly.
func loadConfigFile(k *koanf.Koanf, path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := k.Load(file.Provider(path), toml.Parser())
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading config file %s: %w", path, err)
	}
	return nil
}

// loadConfig layers the config file, CAPTOR_ environment variables and
// explicitly set flags, later layers winning, then fills defaults and
// validates.
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	k := koanf.New(".")

	explicit := configPath != ""
	if !explicit {
		configPath = defaultConfigPath()
	}
	if err := loadConfigFile(k, configPath, explicit); err != nil {
		return nil, err
	}

	envOpt := env.Opt{Prefix: envPrefix, TransformFunc: envKey, EnvironFunc: environFunc}
	if err := k.Load(env.Provider(".", envOpt), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if cmd != nil {
		if err := k.Load(confmap.Provider(setFlags(cmd), "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	var cfg app.Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// setFlags returns the explicitly set flags of cmd and its parents keyed by
// config path. Unset flags are left out so their defaults cannot shadow file
// or environment values. Flags without a config counterpart land on keys the
// Config ignores.
func setFlags(cmd *cli.Command) map[string]any {
	values := make(map[string]any)
	for _, name := range cmd.FlagNames() {
		if !cmd.IsSet(name) {
			continue
		}
		if value := cmd.Value(name); value != nil {
			values[flagKey(name)] = value
		}
	}
	return values
}
