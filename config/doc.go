/*
Package config loads the configuration of an entitywork host with viper: defaults, an optional
YAML file, an optional .env file read through godotenv, and ENTITYWORK_* environment overrides
such as ENTITYWORK_SQL_HOST.

	cfg, err := config.Load("")
	log, err := logger.New(cfg.Log)
*/
package config
