package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load config from file into the config struct, config must be a pointer to the config struct.
// Values already set on config are defaults. Every key can be overridden by env with dots replaced by underscores,
// e.g. Redis.State.Addrs by REDIS_STATE_ADDRS. Durations are parsed from strings like "10s", lists from
// comma-separated strings.
func Load(file string, config any) error {
	v := viper.New()

	m, err := toMap(config)
	if err != nil {
		return fmt.Errorf("mapstructure: %v", err)
	}

	// Defaults survive ReadInConfig, a merged config map does not.
	setDefaults(v, "", m)

	v.SetConfigFile(file)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config from file %s: %v", file, err)
	}

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(config, hook); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	return nil
}

func setDefaults(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := prefix + k
		if nested, ok := val.(map[string]any); ok {
			setDefaults(v, key+".", nested)
			continue
		}
		v.SetDefault(key, val)
	}
}

// toMap decodes nested structs too, so viper knows every leaf key and can match it against env.
func toMap(in any) (map[string]any, error) {
	m := make(map[string]any)
	if err := mapstructure.Decode(in, &m); err != nil {
		return nil, err
	}

	for k, val := range m {
		if reflect.Indirect(reflect.ValueOf(val)).Kind() != reflect.Struct {
			continue
		}

		nested, err := toMap(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		m[k] = nested
	}

	return m, nil
}
