// Package config loads, validates, and normalizes podscribe configuration.
//
// Configuration is TOML, located at ~/.config/podscribe/config.toml or a
// podscribe.toml in the working directory, with secrets resolved from the
// environment (optionally via a .env file). Defaults cover everything except
// credentials and the podcast list.
package config
