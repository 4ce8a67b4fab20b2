package config

import (
	"encoding/json"
	"os"

	"github.com/infinex-exchange/account.account/internal/flagx"
)

// JsonConfig is the DTO for reading JSON configuration files. Only fields
// present in the file override the current values.
type JsonConfig struct {
	EndpointAddrHTTP *string `json:"endpoint_addr_http"`
	DatabaseDSN      *string `json:"database_dsn"`
	RedisAddr        *string `json:"redis_addr"`
	MailStream       *string `json:"mail_stream"`
	TOTPIssuer       *string `json:"totp_issuer"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags into config. Absent flags mean no file is loaded; an
// unreadable or invalid file panics, since the process cannot run with half
// a configuration.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.EndpointAddrHTTP != nil {
		config.EndpointAddrHTTP = *c.EndpointAddrHTTP
	}
	if c.DatabaseDSN != nil {
		config.DatabaseDSN = *c.DatabaseDSN
	}
	if c.RedisAddr != nil {
		config.RedisAddr = *c.RedisAddr
	}
	if c.MailStream != nil {
		config.MailStream = *c.MailStream
	}
	if c.TOTPIssuer != nil {
		config.TOTPIssuer = *c.TOTPIssuer
	}
}
