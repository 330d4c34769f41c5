package oauth

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed endpoints.yaml
var defaultCatalog []byte

// AuthStyle says where the client credentials go on the token request.
type AuthStyle string

const (
	AuthStyleParams AuthStyle = "params"
	AuthStyleHeader AuthStyle = "header"
)

// Endpoint is one provider's refresh configuration.
type Endpoint struct {
	Provider     string        `yaml:"-"`
	TokenURL     string        `yaml:"token_url"`
	Expires      bool          `yaml:"expires"`
	SafetyMargin time.Duration `yaml:"safety_margin"`
	AuthStyle    AuthStyle     `yaml:"auth_style"`
	Scopes       []string      `yaml:"scopes"`
	RateLimit    *RateLimit    `yaml:"rate_limit"`
}

// RateLimit is the request budget a provider grants one connection.
type RateLimit struct {
	Requests int64         `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// Refreshable reports whether the provider issues expiring tokens that can be refreshed.
func (e Endpoint) Refreshable() bool {
	return e.Expires && e.TokenURL != ""
}

// Catalog maps provider name to endpoint.
type Catalog map[string]Endpoint

type catalogFile struct {
	Providers map[string]Endpoint `yaml:"providers"`
}

// LoadCatalog parses the built-in endpoints, then applies overrides from overridePath when it is set.
func LoadCatalog(overridePath string) (Catalog, error) {
	catalog, err := ParseCatalog(defaultCatalog)
	if err != nil {
		return nil, fmt.Errorf("failed to parse built-in endpoints: %w", err)
	}

	if overridePath == "" {
		return catalog, nil
	}

	raw, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read endpoints override %s: %w", overridePath, err)
	}
	overrides, err := ParseCatalog(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoints override %s: %w", overridePath, err)
	}
	for name, endpoint := range overrides {
		catalog[name] = endpoint
	}

	return catalog, nil
}

// ParseCatalog decodes a providers YAML document.
func ParseCatalog(raw []byte) (Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, err
	}

	catalog := make(Catalog, len(file.Providers))
	for name, endpoint := range file.Providers {
		endpoint.Provider = name
		if endpoint.AuthStyle == "" {
			endpoint.AuthStyle = AuthStyleParams
		}
		if endpoint.SafetyMargin < 0 {
			return nil, fmt.Errorf("provider %s: safety_margin must not be negative", name)
		}
		if rl := endpoint.RateLimit; rl != nil && (rl.Requests <= 0 || rl.Window <= 0) {
			return nil, fmt.Errorf("provider %s: rate_limit needs positive requests and window", name)
		}
		catalog[name] = endpoint
	}
	return catalog, nil
}

// Endpoint returns the configuration for provider.
func (c Catalog) Endpoint(provider string) (Endpoint, bool) {
	endpoint, ok := c[provider]
	return endpoint, ok
}
