// Package profile provides a profile-based configuration system that allows
// different models to be routed to different upstream configurations.
package profile

import (
	"errors"
	"strings"
)

var (
	ErrNoProfileMatched  = errors.New("no profile matched for the given model")
	ErrNoProfilesDefined = errors.New("no profiles defined in configuration")
)

// Profile represents a configuration profile that can be matched against model names.
type Profile struct {
	Name     string          `yaml:"name" json:"name" mapstructure:"name"`
	Models   []string        `yaml:"models" json:"models" mapstructure:"models"`
	Upstream *UpstreamConfig `yaml:"upstream" json:"upstream" mapstructure:"upstream"`
	Options  *OptionsConfig  `yaml:"options" json:"options" mapstructure:"options"`
}

// UpstreamConfig identifies the Responses API endpoint requests are proxied to.
type UpstreamConfig struct {
	BaseURL      string `yaml:"base_url" json:"base_url" mapstructure:"base_url"`
	APIKey       string `yaml:"api_key" json:"api_key" mapstructure:"api_key"`
	Organization string `yaml:"organization" json:"organization" mapstructure:"organization"`
}

// OptionsConfig contains general options for request processing.
type OptionsConfig struct {
	PassThrough  bool     `yaml:"pass_through" json:"pass_through" mapstructure:"pass_through"`
	DisableCache bool     `yaml:"disable_cache" json:"disable_cache" mapstructure:"disable_cache"`
	DropFields   []string `yaml:"drop_fields" json:"drop_fields" mapstructure:"drop_fields"`
}

// ProfileManager manages a collection of profiles and provides model-to-profile matching.
type ProfileManager struct {
	profiles []*Profile // profiles in order of priority
}

// NewProfileManager creates a new empty ProfileManager.
func NewProfileManager() *ProfileManager {
	return &ProfileManager{
		profiles: make([]*Profile, 0),
	}
}

// AddProfile adds a profile to the manager.
func (pm *ProfileManager) AddProfile(p *Profile) {
	pm.profiles = append(pm.profiles, p)
}

// Match finds the first profile that matches the given model name.
// Returns ErrNoProfileMatched if no profile matches.
func (pm *ProfileManager) Match(model string) (*Profile, error) {
	if len(pm.profiles) == 0 {
		return nil, ErrNoProfilesDefined
	}
	for _, p := range pm.profiles {
		for _, pattern := range p.Models {
			if matchPattern(pattern, model) {
				return p, nil
			}
		}
	}
	return nil, ErrNoProfileMatched
}

// Profiles returns all registered profiles.
func (pm *ProfileManager) Profiles() []*Profile {
	return pm.profiles
}

// matchPattern checks if a model name matches a pattern.
// Supports:
// - "*" matches everything
// - "prefix*" matches any model starting with "prefix"
// - exact match for patterns without wildcards
func matchPattern(pattern, model string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(model, prefix)
	}
	return pattern == model
}
