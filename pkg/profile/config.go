package profile

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/meklund/restitch/pkg/utils/delimiter"
)

// RootConfig represents the root configuration structure.
type RootConfig struct {
	Profiles map[string]*ProfileConfig `yaml:"profiles" json:"profiles" mapstructure:"profiles"`
	HTTP     *HTTPConfig               `yaml:"http" json:"http" mapstructure:"http"`
	Record   string                    `yaml:"record" json:"record" mapstructure:"record"`
}

// ProfileConfig represents a profile configuration in the config file.
// This is similar to Profile but uses the config file structure.
type ProfileConfig struct {
	Models   []string        `yaml:"models" json:"models" mapstructure:"models"`
	Upstream *UpstreamConfig `yaml:"upstream" json:"upstream" mapstructure:"upstream"`
	Options  *OptionsConfig  `yaml:"options" json:"options" mapstructure:"options"`
}

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	Host string `yaml:"host" json:"host" mapstructure:"host"`
	Port int    `yaml:"port" json:"port" mapstructure:"port"`
}

// envVarRegex matches environment variable references like ${VAR_NAME}
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnv expands environment variable references in a string.
// Supports ${VAR_NAME} syntax.
func ExpandEnv(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if value, ok := os.LookupEnv(varName); ok {
			return value
		}
		return match // Return original if not found
	})
}

// LoadFromViper loads profiles from a viper instance.
// The profiles section should be structured as:
//
//	profiles:
//	  profile-name:
//	    models: ["pattern*"]
//	    upstream:
//	      base_url: "https://api.openai.com"
//	    ...
func LoadFromViper(v *viper.Viper) (*ProfileManager, error) {
	pm := NewProfileManager()
	profilesMap := v.GetStringMap("profiles")
	if len(profilesMap) == 0 {
		return nil, ErrNoProfilesDefined
	}
	// Profile priority is definition order, which viper does not preserve,
	// so the order comes from the raw config file.
	profileOrder := getProfileOrder(v)
	for _, name := range profileOrder {
		key := delimiter.ViperKey("profiles", name)
		p := &Profile{
			Name:     name,
			Models:   v.GetStringSlice(delimiter.ViperKey(key, "models")),
			Upstream: loadUpstreamConfig(v, delimiter.ViperKey(key, "upstream")),
			Options:  loadOptionsConfig(v, delimiter.ViperKey(key, "options")),
		}
		// Expand environment variables in API keys and URLs
		if p.Upstream != nil {
			p.Upstream.APIKey = ExpandEnv(p.Upstream.APIKey)
			p.Upstream.BaseURL = ExpandEnv(p.Upstream.BaseURL)
		}
		pm.AddProfile(p)
	}
	return pm, nil
}

// getProfileOrder attempts to get profile names in their definition order.
// Falls back to map iteration order if order cannot be determined.
func getProfileOrder(v *viper.Viper) []string {
	configFile := v.ConfigFileUsed()
	if configFile != "" {
		if order, err := extractProfileOrderFromFile(configFile); err == nil && len(order) > 0 {
			return order
		}
	}
	profilesMap := v.GetStringMap("profiles")
	names := make([]string, 0, len(profilesMap))
	for name := range profilesMap {
		names = append(names, name)
	}
	return names
}

// extractProfileOrderFromFile reads the config file and extracts profile names in order.
func extractProfileOrderFromFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Profiles yaml.Node `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.Profiles.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("profiles is not a mapping")
	}
	var names []string
	// In a mapping node, content alternates between key and value
	for i := 0; i < len(raw.Profiles.Content); i += 2 {
		if raw.Profiles.Content[i].Kind == yaml.ScalarNode {
			names = append(names, raw.Profiles.Content[i].Value)
		}
	}
	return names, nil
}

func loadUpstreamConfig(v *viper.Viper, key string) *UpstreamConfig {
	if !v.IsSet(key) {
		return nil
	}
	return &UpstreamConfig{
		BaseURL:      v.GetString(delimiter.ViperKey(key, "base_url")),
		APIKey:       v.GetString(delimiter.ViperKey(key, "api_key")),
		Organization: v.GetString(delimiter.ViperKey(key, "organization")),
	}
}

func loadOptionsConfig(v *viper.Viper, key string) *OptionsConfig {
	if !v.IsSet(key) {
		return nil
	}
	return &OptionsConfig{
		PassThrough:  v.GetBool(delimiter.ViperKey(key, "pass_through")),
		DisableCache: v.GetBool(delimiter.ViperKey(key, "disable_cache")),
		DropFields:   v.GetStringSlice(delimiter.ViperKey(key, "drop_fields")),
	}
}

// GetHTTPConfig returns the HTTP configuration from viper.
func GetHTTPConfig(v *viper.Viper) *HTTPConfig {
	return &HTTPConfig{
		Host: v.GetString(delimiter.ViperKey("http", "host")),
		Port: v.GetInt(delimiter.ViperKey("http", "port")),
	}
}

// GetPassThrough safely gets the pass-through flag.
func (o *OptionsConfig) GetPassThrough() bool {
	if o == nil {
		return false
	}
	return o.PassThrough
}

// GetDisableCache safely gets the cache-disable flag.
func (o *OptionsConfig) GetDisableCache() bool {
	if o == nil {
		return false
	}
	return o.DisableCache
}

// GetDropFields safely gets the request fields to strip before proxying.
func (o *OptionsConfig) GetDropFields() []string {
	if o == nil {
		return nil
	}
	return o.DropFields
}

// GetBaseURL safely gets the upstream base URL with a default.
func (u *UpstreamConfig) GetBaseURL() string {
	if u == nil || u.BaseURL == "" {
		return "https://api.openai.com"
	}
	return strings.TrimSuffix(u.BaseURL, "/")
}

// GetAPIKey safely gets the upstream API key.
func (u *UpstreamConfig) GetAPIKey() string {
	if u == nil {
		return ""
	}
	return u.APIKey
}

// GetOrganization safely gets the upstream organization header value.
func (u *UpstreamConfig) GetOrganization() string {
	if u == nil {
		return ""
	}
	return u.Organization
}
