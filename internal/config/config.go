package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Bind string `yaml:"bind"`
		Port int    `yaml:"port"`
		TLS  struct {
			Enabled bool   `yaml:"enabled"`
			Cert    string `yaml:"cert"`
			Key     string `yaml:"key"`
		} `yaml:"tls"`
	} `yaml:"http"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
		Fake     bool   `yaml:"fake_store"` // in-memory store, for local runs
	} `yaml:"mongo"`
	Auth struct {
		JWTPublicKeys []string `yaml:"jwt_public_keys"` // PEM cert paths; empty disables auth
		Issuer        string   `yaml:"issuer"`
		Audience      string   `yaml:"audience"`
	} `yaml:"auth"`
	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`
	Notify struct {
		Enabled  bool     `yaml:"enabled"`
		URL      string   `yaml:"url"` // ws(s):// or http(s):// push target
		Types    []string `yaml:"types"`
		Insecure bool     `yaml:"insecure"`
		Fake     bool     `yaml:"fake_notify"`
	} `yaml:"notify"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if c.HTTP.Bind == "" {
		c.HTTP.Bind = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://127.0.0.1:27017"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "pulso"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return &c, nil
}
