package config

import (
	"fmt"
	"strings"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/utils"
)

// ValidationError collects every problem found in one pass.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(&cfg.Server, ve)
	validateClient(&cfg.Client, ve)
	if cfg.Database.Enabled {
		validateDatabase(&cfg.Database, ve)
	}
	validateDuration("log.retention", cfg.Log.Retention, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(s *ServerConfig, ve *ValidationError) {
	validatePort("server.port", s.Port, ve)
	validateTLS("server.tls", &s.TLS, true, ve)
	if s.MaxConnections < 0 {
		ve.Add("server.max_connections must not be negative, got %d", s.MaxConnections)
	}
	if s.MaxMessageSize < 0 {
		ve.Add("server.max_message_size must not be negative, got %d", s.MaxMessageSize)
	}
	if s.RateLimit.RequestsPerSecond < 0 || s.RateLimit.Burst < 0 {
		ve.Add("server.rate_limit values must not be negative")
	}
	validateDuration("server.idle_timeout", s.IdleTimeout, ve)
	validateDuration("server.handshake_timeout", s.HandshakeTimeout, ve)
	validateDuration("server.shutdown_grace", s.ShutdownGrace, ve)
	for i, cred := range s.Credentials {
		if strings.TrimSpace(cred.Key) == "" {
			ve.Add("server.credentials[%d].key is empty", i)
		}
		switch strings.ToLower(cred.Permission) {
		case "read", "full":
		default:
			ve.Add("server.credentials[%d].permission %q is not one of read, full", i, cred.Permission)
		}
	}
}

func validateClient(c *ClientConfig, ve *ValidationError) {
	validatePort("client.port", c.Port, ve)
	validateTLS("client.tls", &c.TLS, false, ve)
	validateDuration("client.request_timeout", c.RequestTimeout, ve)
	validateDuration("client.dial_timeout", c.DialTimeout, ve)
}

func validateDatabase(d *DatabaseConfig, ve *ValidationError) {
	if d.Host == "" {
		ve.Add("database.host is empty")
	}
	if d.Database == "" {
		ve.Add("database.database is empty")
	}
	validateDuration("database.connect_timeout", d.ConnectTimeout, ve)
	validateDuration("database.socket_timeout", d.SocketTimeout, ve)
	validateDuration("database.connect_idle_timeout", d.ConnectIdleTimeout, ve)
	validateDuration("database.operation_timeout", d.OperationTimeout, ve)
	validateDuration("database.heartbeat", d.Heartbeat, ve)
	validateDuration("database.cache_ttl", d.CacheTTL, ve)
}

func validatePort(field string, port int, ve *ValidationError) {
	if port < 0 || port > 65535 {
		ve.Add("%s must be between 0 and 65535, got %d", field, port)
	}
}

func validateTLS(field string, t *TLSConfig, server bool, ve *ValidationError) {
	if !t.Enabled {
		return
	}
	if server && (t.CertFile == "" || t.KeyFile == "") {
		ve.Add("%s requires cert_file and key_file", field)
	}
	if server && t.RequireClientCert && t.CAFile == "" {
		ve.Add("%s.require_client_cert requires ca_file", field)
	}
	if !server && (t.CertFile == "") != (t.KeyFile == "") {
		ve.Add("%s cert_file and key_file must be set together", field)
	}
}

func validateDuration(field, value string, ve *ValidationError) {
	if _, err := utils.ParseStringTime(value); err != nil {
		ve.Add("%s: %v", field, err)
	}
}
