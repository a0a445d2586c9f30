package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// GetSecret resolves a secret for key.
// Priority:
//  1. Direct environment variable (e.g. DB_PASSWORD)
//  2. File path from _FILE environment variable (e.g. DB_PASSWORD_FILE)
//  3. Value held by v (flag or default)
//
// This allows secrets to be provided via Docker secrets
// (e.g. DB_PASSWORD_FILE=/run/secrets/db_password).
func GetSecret(v *viper.Viper, key string) string {
	envName := strings.ToUpper(strings.ReplaceAll(key, "-", "_"))

	if value := os.Getenv(envName); value != "" {
		return value
	}

	if filePath := os.Getenv(envName + "_FILE"); filePath != "" {
		if data, err := os.ReadFile(filePath); err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return v.GetString(key)
}
