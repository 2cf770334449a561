package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd
var osLookupEnv = os.LookupEnv

const (
	userConfigDir    = ".config/coffeectl"
	projectConfigDir = ".coffeectl"
	configFileName   = "config.yaml"
	dotEnvFileName   = ".env"
)

// LoadConfig loads the coffeectl configuration by layering default, user and
// project settings, then applying .env and process environment overrides.
// Command-line flags are applied by the caller via ApplyOverrides.
func LoadConfig() (Config, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// user config is optional
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		config, err = layerFile(config, userConfigPath)
		if err != nil {
			return Config{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
		}
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else {
		config, err = layerFile(config, projectConfigPath)
		if err != nil {
			return Config{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
		}
	}

	lookup, err := envLookup()
	if err != nil {
		return Config{}, err
	}
	config, err = applyEnv(config, lookup)
	if err != nil {
		return Config{}, err
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func layerFile(base Config, path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return base, nil
	}
	overlay, err := loadConfigFromFile(path)
	if err != nil {
		return Config{}, err
	}
	return mergeConfigs(base, overlay), nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

var getDotEnvPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, dotEnvFileName), nil
}

// loadConfigFromFile loads a Config from a YAML file.
func loadConfigFromFile(filePath string) (Config, error) {
	var config Config
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Scalar fields
// override when set; images and tiers are merged by name, keeping the base
// order and appending new entries.
func mergeConfigs(base, overlay Config) Config {
	merged := base

	if overlay.Cluster.Name != "" {
		merged.Cluster.Name = overlay.Cluster.Name
	}
	if overlay.Cluster.Backend != "" {
		merged.Cluster.Backend = overlay.Cluster.Backend
	}
	if overlay.Cluster.Context != "" {
		merged.Cluster.Context = overlay.Cluster.Context
	}
	if overlay.Namespace != "" {
		merged.Namespace = overlay.Namespace
	}

	merged.Images = mergeByName(base.Images, overlay.Images, func(i ImageDefinition) string { return i.Name })
	merged.Tiers = mergeByName(base.Tiers, overlay.Tiers, func(t TierDefinition) string { return t.Name })

	if overlay.Retry.Attempts != 0 {
		merged.Retry.Attempts = overlay.Retry.Attempts
	}
	if overlay.Retry.InitialDelay != 0 {
		merged.Retry.InitialDelay = overlay.Retry.InitialDelay
	}
	if overlay.Retry.Factor != 0 {
		merged.Retry.Factor = overlay.Retry.Factor
	}

	if overlay.Service.Name != "" {
		merged.Service.Name = overlay.Service.Name
	}
	if overlay.Service.Deployment != "" {
		merged.Service.Deployment = overlay.Service.Deployment
	}
	if overlay.Service.Selector != "" {
		merged.Service.Selector = overlay.Service.Selector
	}
	if overlay.Service.Port != 0 {
		merged.Service.Port = overlay.Service.Port
	}
	if overlay.Service.LocalPort != 0 {
		merged.Service.LocalPort = overlay.Service.LocalPort
	}

	if overlay.Database.Host != "" {
		merged.Database.Host = overlay.Database.Host
	}
	if overlay.Database.Port != 0 {
		merged.Database.Port = overlay.Database.Port
	}
	if overlay.Database.User != "" {
		merged.Database.User = overlay.Database.User
	}
	if overlay.Database.Password != "" {
		merged.Database.Password = overlay.Database.Password
	}
	if overlay.Database.Name != "" {
		merged.Database.Name = overlay.Database.Name
	}
	if overlay.Database.SSLMode != "" {
		merged.Database.SSLMode = overlay.Database.SSLMode
	}
	if overlay.Database.Service != "" {
		merged.Database.Service = overlay.Database.Service
	}
	if overlay.Database.Selector != "" {
		merged.Database.Selector = overlay.Database.Selector
	}
	// Only an explicit true enables verification
	merged.Database.Verify = base.Database.Verify || overlay.Database.Verify

	if overlay.Smoke.CustomerName != "" {
		merged.Smoke.CustomerName = overlay.Smoke.CustomerName
	}
	if overlay.Smoke.Timeout != 0 {
		merged.Smoke.Timeout = overlay.Smoke.Timeout
	}
	if overlay.Smoke.Retries != 0 {
		merged.Smoke.Retries = overlay.Smoke.Retries
	}

	if overlay.Load.Requests != 0 {
		merged.Load.Requests = overlay.Load.Requests
	}
	if overlay.Load.Concurrency != 0 {
		merged.Load.Concurrency = overlay.Load.Concurrency
	}
	if overlay.Load.Path != "" {
		merged.Load.Path = overlay.Load.Path
	}

	if overlay.Events.Limit != 0 {
		merged.Events.Limit = overlay.Events.Limit
	}
	merged.AssumeYes = base.AssumeYes || overlay.AssumeYes

	return merged
}

func mergeByName[T any](base, overlay []T, name func(T) string) []T {
	if len(overlay) == 0 {
		return base
	}
	out := make([]T, 0, len(base)+len(overlay))
	index := make(map[string]int, len(base))
	for _, item := range base {
		index[name(item)] = len(out)
		out = append(out, item)
	}
	for _, item := range overlay {
		if i, ok := index[name(item)]; ok {
			out[i] = item
			continue
		}
		index[name(item)] = len(out)
		out = append(out, item)
	}
	return out
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// Overrides carries values given on the command line. Empty fields leave
// the loaded configuration untouched.
type Overrides struct {
	ClusterName string
	Backend     string
	Context     string
	Namespace   string
	AssumeYes   bool
}

// ApplyOverrides applies command-line values on top of cfg and re-validates.
func ApplyOverrides(cfg Config, o Overrides) (Config, error) {
	if o.ClusterName != "" {
		cfg.Cluster.Name = o.ClusterName
	}
	if o.Backend != "" {
		cfg.Cluster.Backend = Backend(o.Backend)
	}
	if o.Context != "" {
		cfg.Cluster.Context = o.Context
	}
	if o.Namespace != "" {
		cfg.Namespace = o.Namespace
	}
	if o.AssumeYes {
		cfg.AssumeYes = true
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
