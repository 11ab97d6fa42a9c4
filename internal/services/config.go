package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
)

// LoadConfig loads configuration from file and merges with CLI flags
// Priority order (highest to lowest):
//  1. CLI flags (via viper bindings)
//  2. Environment variables (ENZFLOW_*)
//  3. Configuration file
//  4. Default values
func LoadConfig(configFile string) (*models.ProjectConfig, error) {
	return LoadConfigWith(viper.GetViper(), configFile)
}

// LoadConfigWith loads configuration into the given viper instance
func LoadConfigWith(v *viper.Viper, configFile string) (*models.ProjectConfig, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		// Search for config in standard locations
		v.SetConfigName("enzflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/enzflow")
		v.AddConfigPath("/etc/enzflow")
	}

	v.SetEnvPrefix("ENZFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, models.DefaultConfig())

	// Read config file (optional - don't fail if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config models.ProjectConfig
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&config, decodeHook); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		field := "config"
		if words := strings.Fields(err.Error()); len(words) > 0 {
			field = words[0]
		}
		return nil, lib.ErrInvalidConfig(field, err.Error())
	}

	if err := models.ValidateDataDir(config.DataDir); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults registers every leaf of the default config so AutomaticEnv
// can override keys that never appear in the file.
func setDefaults(v *viper.Viper, defaults models.ProjectConfig) {
	var raw map[string]interface{}
	if err := mapstructure.Decode(defaults, &raw); err != nil {
		return
	}
	flattenDefaults(v, "", raw)
}

func flattenDefaults(v *viper.Viper, prefix string, m map[string]interface{}) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if val != nil && reflect.TypeOf(val).Kind() == reflect.Struct {
			var nested map[string]interface{}
			if err := mapstructure.Decode(val, &nested); err == nil {
				flattenDefaults(v, key, nested)
				continue
			}
		}
		if nested, ok := val.(map[string]interface{}); ok {
			flattenDefaults(v, key, nested)
			continue
		}
		v.SetDefault(key, val)
	}
}

// GetConfigFilePath returns the path to the config file that was loaded
func GetConfigFilePath() string {
	return viper.ConfigFileUsed()
}
