// Package config loads application configuration from environment variables
// into tagged structs.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11: the
// default .env file is loaded once per process, then env.Parse fills the
// struct. Each configuration type is parsed at most once and cached, so
// infrastructure packages can declare their own Config structs and load them
// independently without re-reading the environment.
//
//	type Config struct {
//	    Addr   string `env:"HTTP_ADDR" envDefault:":8080"`
//	    Secret string `env:"CLICK_SECRET_KEY,required"`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
package config
