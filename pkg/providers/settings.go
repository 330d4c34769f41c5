package providers

import (
	"strconv"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Setting reads key from the integration config, falling back to the provider profile.
func Setting(integration *models.Integration, key string) string {
	if v := integration.ConfigString(key); v != "" {
		return v
	}
	return integration.ProfileString(key)
}

// SettingInt reads a positive integer setting, or def.
func SettingInt(integration *models.Integration, key string, def int) int {
	n, err := strconv.Atoi(Setting(integration, key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
