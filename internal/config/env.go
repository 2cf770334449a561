package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables recognized on top of the YAML layers.
const (
	EnvClusterName = "CLUSTER_NAME"
	EnvBackend     = "CLUSTER_BACKEND"
	EnvKubeContext = "KUBE_CONTEXT"
	EnvNamespace   = "NAMESPACE"
	EnvDBHost      = "DB_HOST"
	EnvDBPort      = "DB_PORT"
	EnvDBUser      = "DB_USER"
	EnvDBPassword  = "DB_PASSWORD"
	EnvDBName      = "DB_NAME"
	EnvAppImage    = "APP_IMAGE"
	EnvAssumeYes   = "COFFEECTL_ASSUME_YES"
)

type lookupFunc func(key string) (string, bool)

// envLookup returns a lookup that prefers the process environment and falls
// back to the values of a .env file in the working directory. The process
// environment itself is never modified.
func envLookup() (lookupFunc, error) {
	dotenv := map[string]string{}
	path, err := getDotEnvPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			dotenv, err = godotenv.Read(path)
			if err != nil {
				return nil, fmt.Errorf("error reading %s: %w", path, err)
			}
		}
	}
	return func(key string) (string, bool) {
		if v, ok := osLookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

func applyEnv(cfg Config, lookup lookupFunc) (Config, error) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str(EnvClusterName, &cfg.Cluster.Name)
	if v, ok := lookup(EnvBackend); ok && v != "" {
		cfg.Cluster.Backend = Backend(strings.ToLower(strings.TrimSpace(v)))
	}
	str(EnvKubeContext, &cfg.Cluster.Context)
	str(EnvNamespace, &cfg.Namespace)
	str(EnvDBHost, &cfg.Database.Host)
	str(EnvDBUser, &cfg.Database.User)
	str(EnvDBPassword, &cfg.Database.Password)
	str(EnvDBName, &cfg.Database.Name)

	if v, ok := lookup(EnvDBPort); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", EnvDBPort, v, err)
		}
		cfg.Database.Port = port
	}

	if v, ok := lookup(EnvAppImage); ok && v != "" {
		cfg.Images = withAppImage(cfg.Images, strings.TrimSpace(v))
	}

	if v, ok := lookup(EnvAssumeYes); ok && isTruthy(v) {
		cfg.AssumeYes = true
	}
	return cfg, nil
}

// withAppImage replaces the name of the first image, which is the
// application image by convention.
func withAppImage(images []ImageDefinition, name string) []ImageDefinition {
	out := append([]ImageDefinition(nil), images...)
	if len(out) == 0 {
		return []ImageDefinition{{Name: name, Context: ".", Dockerfile: "Dockerfile"}}
	}
	out[0].Name = name
	return out
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
