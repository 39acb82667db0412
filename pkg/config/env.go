package config

import (
	"fmt"
	"time"
)

// Lambda environment variables
const (
	EnvInstallerFunction = "INSTALLER_FUNCTION_NAME"
	EnvHelmWorkdir       = "HELM_WORKDIR"
	EnvHelmTimeout       = "HELM_TIMEOUT"

	DefaultHelmWorkdir = "/tmp/helm"
	DefaultHelmTimeout = 5 * time.Minute
)

// LambdaEnv is the handler configuration read from the function environment
type LambdaEnv struct {
	InstallerFunction string
	HelmWorkdir       string
	HelmTimeout       time.Duration
}

// LoadLambdaEnv reads the handler configuration through getenv, normally
// os.Getenv. Only HELM_TIMEOUT can be malformed.
func LoadLambdaEnv(getenv func(string) string) (LambdaEnv, error) {
	env := LambdaEnv{
		InstallerFunction: getenv(EnvInstallerFunction),
		HelmWorkdir:       getenv(EnvHelmWorkdir),
		HelmTimeout:       DefaultHelmTimeout,
	}

	if env.HelmWorkdir == "" {
		env.HelmWorkdir = DefaultHelmWorkdir
	}

	if raw := getenv(EnvHelmTimeout); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return LambdaEnv{}, fmt.Errorf("invalid %s %q: %w", EnvHelmTimeout, raw, err)
		}
		if timeout <= 0 {
			return LambdaEnv{}, fmt.Errorf("invalid %s %q: must be positive", EnvHelmTimeout, raw)
		}
		env.HelmTimeout = timeout
	}

	return env, nil
}
