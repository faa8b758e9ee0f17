package am

import (
	"os"
	"sort"
	"strings"

	"github.com/teranos/sprout/errors"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/sprout/config.toml
	SourceUser        ConfigSource = "user"        // ~/.sprout/am.toml
	SourceProject     ConfigSource = "project"     // project am.toml
	SourceEnvironment ConfigSource = "environment" // SPROUT_* env vars
)

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource // The type of config source (default, system, user, etc.)
	Path   string       // File path or environment variable name
}

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"`
}

// GetConfigIntrospection lists every effective setting with the source it came from.
func GetConfigIntrospection() ([]SettingInfo, error) {
	if _, err := Load(); err != nil {
		return nil, errors.Wrap(err, "failed to load config for introspection")
	}
	return introspect(GetViper().AllSettings(), ConfigSources), nil
}

func introspect(all map[string]interface{}, sources map[string]SourceInfo) []SettingInfo {
	var settings []SettingInfo
	flattenSettings(all, "", func(key string, value interface{}) {
		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sources[key]; ok {
			info = si
		}

		// Environment always wins over files
		envKey := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if os.Getenv(envKey) != "" {
			info = SourceInfo{Source: SourceEnvironment, Path: envKey}
		}

		settings = append(settings, SettingInfo{
			Key:        key,
			Value:      value,
			Source:     info.Source,
			SourcePath: info.Path,
		})
	})
	return settings
}

// flattenSettings walks nested settings in sorted key order
func flattenSettings(settings map[string]interface{}, prefix string, visit func(string, interface{})) {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := settings[key].(map[string]interface{}); ok {
			flattenSettings(nested, fullKey, visit)
			continue
		}
		visit(fullKey, settings[key])
	}
}
