package config

import (
	"flag"
	"os"

	"github.com/infinex-exchange/account.account/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-r string   Redis address (host:port)
//	-m string   mail stream name
//	-i string   TOTP issuer name
//
// Args are filtered through flagx.FilterArgs first, so flags belonging to
// other components do not break parsing.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-r", "-m", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.MailStream, "m", config.MailStream, "mail stream name")
	fs.StringVar(&config.TOTPIssuer, "i", config.TOTPIssuer, "totp issuer")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
