package main

import (
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Redis defines the redis-specific configuration options.
type Redis struct {
	Addr        string        `yaml:"addr"`
	Cluster     bool          `yaml:"cluster"`
	MaxActive   int           `yaml:"max_active"`
	MaxIdle     int           `yaml:"max_idle"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// Server defines the relay server configuration options.
type Server struct {
	// HTTP server configuration
	Addr             string        `yaml:"addr"`
	MaxHeaderBytes   int           `yaml:"max_header_bytes"`
	ReadBufferSize   int           `yaml:"read_buffer_size"`
	WriteBufferSize  int           `yaml:"write_buffer_size"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// websocket/chat configuration
	ReadLimit               int64         `yaml:"read_limit"`
	ReadTimeout             time.Duration `yaml:"read_timeout"`
	WriteLimit              int64         `yaml:"write_limit"`
	WriteTimeout            time.Duration `yaml:"write_timeout"`
	AcquireWriteLockTimeout time.Duration `yaml:"acquire_write_lock_timeout"`
}

// Config defines the configuration options of the server.
type Config struct {
	Redis  *Redis  `yaml:"redis"`
	Server *Server `yaml:"server"`
}

func getDefaultConfig() *Config {
	return &Config{
		Redis: &Redis{
			Addr:        *redisAddrFlag,
			Cluster:     *redisClusterFlag,
			MaxActive:   0,
			MaxIdle:     *redisMaxIdleFlag,
			IdleTimeout: 0,
		},
		Server: &Server{
			Addr:                    ":" + strconv.Itoa(*portFlag),
			ReadLimit:               0,
			ReadTimeout:             0,
			WriteLimit:              0,
			WriteTimeout:            0,
			AcquireWriteLockTimeout: 0,
		},
	}
}

func getConfigFromReader(r io.Reader) (*Config, error) {
	conf := getDefaultConfig()
	if r != nil {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, conf); err != nil {
			return nil, err
		}
	}
	return conf, nil
}

func getConfigFromFile(file string) (*Config, error) {
	var r io.Reader
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		r = f
	}
	return getConfigFromReader(r)
}

// applyEnvOverrides lets the environment (possibly loaded from a .env
// file) override the listen address and the redis address.
func applyEnvOverrides(conf *Config) {
	if port := os.Getenv("PORT"); port != "" {
		conf.Server.Addr = ":" + port
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		conf.Redis.Addr = addr
	}
}
