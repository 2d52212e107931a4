package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/utils"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "jtp.yaml"

var ErrConfigCreated = errors.New("the configuration file does not exist and has been created. Please try again after editing the configuration file")

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	// 服务端: 校验客户端证书的 CA; 客户端: 校验服务端证书的 CA
	CAFile             string `yaml:"ca_file"`
	ServerName         string `yaml:"server_name"`
	RequireClientCert  bool   `yaml:"require_client_cert"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type Credential struct {
	Name       string `yaml:"name"`
	Key        string `yaml:"key"`
	Permission string `yaml:"permission"`
}

type ServerConfig struct {
	Host             string          `yaml:"host"`
	Port             int             `yaml:"port"`
	TLS              TLSConfig       `yaml:"tls"`
	MaxConnections   int             `yaml:"max_connections"`
	IdleTimeout      string          `yaml:"idle_timeout"`
	HandshakeTimeout string          `yaml:"handshake_timeout"`
	ShutdownGrace    string          `yaml:"shutdown_grace"`
	MaxMessageSize   int             `yaml:"max_message_size"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
	Credentials      []Credential    `yaml:"credentials"`
}

type ClientConfig struct {
	Host           string    `yaml:"host"`
	Port           int       `yaml:"port"`
	TLS            TLSConfig `yaml:"tls"`
	Key            string    `yaml:"key"`
	RequestTimeout string    `yaml:"request_timeout"`
	DialTimeout    string    `yaml:"dial_timeout"`
	MaxMessageSize int       `yaml:"max_message_size"`
}

type DatabaseConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Host               string `yaml:"host"`
	Port               uint64 `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	Database           string `yaml:"database"`
	UseTLS             bool   `yaml:"use_tls"`
	ConnectTimeout     string `yaml:"connect_timeout"`
	SocketTimeout      string `yaml:"socket_timeout"`
	ConnectIdleTimeout string `yaml:"connect_idle_timeout"`
	OperationTimeout   string `yaml:"operation_timeout"`
	Heartbeat          string `yaml:"heartbeat"`
	MinPoolSize        uint64 `yaml:"min_pool_size"`
	MaxPoolSize        uint64 `yaml:"max_pool_size"`
	CacheSize          int    `yaml:"cache_size"`
	CacheTTL           string `yaml:"cache_ttl"`
}

type LogConfig struct {
	Level     string `yaml:"level"`
	Dir       string `yaml:"dir"`
	Retention string `yaml:"retention"`
}

type Config struct {
	AppName   string         `yaml:"app_name"`
	DebugMode bool           `yaml:"debug_mode"`
	Server    ServerConfig   `yaml:"server"`
	Client    ClientConfig   `yaml:"client"`
	Database  DatabaseConfig `yaml:"database"`
	Log       LogConfig      `yaml:"log"`
}

func DefaultConfig() *Config {
	return &Config{
		AppName: "jtp",
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             5000,
			TLS:              TLSConfig{Enabled: true, CertFile: "certs/server.crt", KeyFile: "certs/server.key"},
			MaxConnections:   10000,
			IdleTimeout:      "0",
			HandshakeTimeout: "10s",
			ShutdownGrace:    "5s",
			MaxMessageSize:   1 << 20,
			Credentials:      []Credential{{Name: "default", Key: "test", Permission: "full"}},
		},
		Client: ClientConfig{
			Host:           "localhost",
			Port:           5000,
			TLS:            TLSConfig{Enabled: true, CAFile: "certs/ca.crt"},
			Key:            "test",
			RequestTimeout: "1s",
			DialTimeout:    "10s",
			MaxMessageSize: 1 << 20,
		},
		Database: DatabaseConfig{
			Host:               "localhost",
			Port:               27017,
			Database:           "jtp",
			ConnectTimeout:     "10s",
			SocketTimeout:      "30s",
			ConnectIdleTimeout: "5m",
			OperationTimeout:   "5s",
			Heartbeat:          "10s",
			MinPoolSize:        1,
			MaxPoolSize:        20,
			CacheSize:          256,
			CacheTTL:           "1m",
		},
		Log: LogConfig{
			Level:     "info",
			Dir:       "logs",
			Retention: "30d",
		},
	}
}

// ReadConfig loads the YAML file at path, applies environment overrides and
// validates the result. A missing file is created from DefaultConfig.
func ReadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	config := DefaultConfig()

	bytes, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error occured while reading config: %w", err)
		}
		data, _ := yaml.Marshal(config)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("error occured while creating config: %w", err)
		}
		return nil, ErrConfigCreated
	}

	if err := yaml.Unmarshal(bytes, config); err != nil {
		return nil, fmt.Errorf("the configuration file does not contain valid YAML: %w", err)
	}

	ApplyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnvOverrides lets environment variables take precedence over file values.
func ApplyEnvOverrides(cfg *Config) {
	setString := func(env string, target *string) {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			*target = v
		}
	}
	setInt := func(env string, target *int) {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*target = n
			}
		}
	}

	setString("SERVER_HOST", &cfg.Server.Host)
	setInt("SERVER_PORT", &cfg.Server.Port)
	setString("SERVER_CERT_FILE", &cfg.Server.TLS.CertFile)
	setString("SERVER_KEY_FILE", &cfg.Server.TLS.KeyFile)
	setString("SERVER_CLIENT_CA_FILE", &cfg.Server.TLS.CAFile)

	setString("CLIENT_HOST", &cfg.Client.Host)
	setInt("CLIENT_PORT", &cfg.Client.Port)
	setString("CLIENT_CA_FILE", &cfg.Client.TLS.CAFile)
	setString("CLIENT_CERT_FILE", &cfg.Client.TLS.CertFile)
	setString("CLIENT_KEY_FILE", &cfg.Client.TLS.KeyFile)
	setString("CLIENT_KEY", &cfg.Client.Key)

	if v, ok := os.LookupEnv("JTP_DEBUG"); ok {
		cfg.DebugMode = v == "true" || v == "1"
	}
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s ServerConfig) IdleTimeoutDuration() time.Duration {
	return utils.MustParseStringTime(s.IdleTimeout)
}

func (s ServerConfig) HandshakeTimeoutDuration() time.Duration {
	return utils.MustParseStringTime(s.HandshakeTimeout)
}

func (s ServerConfig) ShutdownGraceDuration() time.Duration {
	return utils.MustParseStringTime(s.ShutdownGrace)
}

func (c ClientConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c ClientConfig) RequestTimeoutDuration() time.Duration {
	return utils.MustParseStringTime(c.RequestTimeout)
}

func (c ClientConfig) DialTimeoutDuration() time.Duration {
	return utils.MustParseStringTime(c.DialTimeout)
}

func (d DatabaseConfig) OperationTimeoutDuration() time.Duration {
	return utils.MustParseStringTime(d.OperationTimeout)
}
