package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	portEnvVar    = "PORT"
	appNameEnvVar = "APP_NAME"
	envEnvVar     = "ENV"
)

type EnvVars struct {
	overrides *Overrides
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := stringValue(e.overrides.Port, portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return GetEnv(appNameEnvVar, "Session Broker")
}

func (e EnvVars) GetEnv() string {
	return stringValue(e.overrides.Env, envEnvVar, "DEV")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func stringValue(override, envVar, defaultValue string) string {
	if override != "" {
		return override
	}
	return GetEnv(envVar, defaultValue)
}
