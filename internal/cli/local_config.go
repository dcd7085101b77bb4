package cli

import (
	"os"

	"github.com/urisubmit/urisubmit/internal/config"
)

var systemConfigPaths = []string{"/etc/urisubmit/config.yaml", "/etc/urisubmit/config.yml"}

// defaultConfigPath returns the first config file found, or "" when there is
// none and defaults apply.
func defaultConfigPath() string {
	if v := os.Getenv("URISUBMIT_CONFIG"); v != "" {
		return v
	}
	candidates := append([]string{"config.yml", "config.yaml"}, systemConfigPaths...)
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadLocalConfig loads an explicitly named file strictly. Without one it
// looks in the default locations and falls back to built-in defaults.
func loadLocalConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if path = defaultConfigPath(); path == "" {
		return config.Default()
	}
	return config.LoadOrDefault(path)
}
