package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/teamcodes/internal/flagx"
	"github.com/dmitrijs2005/teamcodes/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "10s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP        string         `json:"endpoint_addr_http"`
	DatabaseDSN             string         `json:"database_dsn"`
	RedisAddr               string         `json:"redis_addr"`
	SessionSecretKey        string         `json:"session_secret_key"`
	SessionValidityDuration timex.Duration `json:"session_validity_duration"`
	LinkRecheckInterval     timex.Duration `json:"link_recheck_interval"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; when neither is set, no JSON file is loaded. An unreadable file or
// invalid JSON panics: a half-applied config is worse than a crash at boot.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.RedisAddr = c.RedisAddr
	config.SessionSecretKey = c.SessionSecretKey
	config.SessionValidityDuration = time.Duration(c.SessionValidityDuration.Duration)
	config.LinkRecheckInterval = time.Duration(c.LinkRecheckInterval.Duration)
}
