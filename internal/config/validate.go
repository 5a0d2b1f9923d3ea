package config

import (
	"fmt"
)

// Validate enforces configuration rules.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if err := validateAuth(&cfg.Auth); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}

	if err := validateHandlers(&cfg.Handlers); err != nil {
		return fmt.Errorf("handlers validation failed: %w", err)
	}

	if err := validateAudit(&cfg.Audit); err != nil {
		return fmt.Errorf("audit validation failed: %w", err)
	}

	if err := validateTelemetry(&cfg.Telemetry); err != nil {
		return fmt.Errorf("telemetry validation failed: %w", err)
	}

	if cfg.Report.QueueSize <= 0 {
		return fmt.Errorf("report queue size must be positive, got %d", cfg.Report.QueueSize)
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing endpoint required when tracing is enabled")
	}

	return nil
}

// validateServer validates HTTP server parameters.
func validateServer(s *ServerConfig) error {
	if s.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if s.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive, got %v", s.ReadTimeout)
	}
	if s.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive, got %v", s.WriteTimeout)
	}
	if s.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive, got %v", s.IdleTimeout)
	}
	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", s.ShutdownTimeout)
	}
	return nil
}

// validateAuth validates token verification parameters.
func validateAuth(a *AuthConfig) error {
	switch a.Algorithm {
	case "HS256":
		if a.Required && a.Secret == "" {
			return fmt.Errorf("HS256 requires a secret")
		}
	case "RS256":
		if a.Required && a.PublicKeyFile == "" {
			return fmt.Errorf("RS256 requires a public key file")
		}
	default:
		return fmt.Errorf("unsupported algorithm %q, must be HS256 or RS256", a.Algorithm)
	}
	return nil
}

// validateHandlers validates handler definitions. No command name may be
// claimed twice, since routing would then depend on registration order.
func validateHandlers(h *HandlersConfig) error {
	for i, t := range h.Toggles {
		if t.Capability == "" {
			return fmt.Errorf("toggle %d: capability cannot be empty", i)
		}
	}

	names := h.CommandNames()
	if len(names) == 0 {
		return fmt.Errorf("at least one handler must be configured")
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" {
			return fmt.Errorf("command name cannot be empty")
		}
		if seen[name] {
			return fmt.Errorf("command %q claimed twice", name)
		}
		seen[name] = true
	}
	return nil
}

// validateAudit validates audit log parameters.
func validateAudit(a *AuditConfig) error {
	if !a.Enabled {
		return nil
	}
	if a.Dir == "" {
		return fmt.Errorf("dir cannot be empty when audit is enabled")
	}
	if a.MaxSizeMB <= 0 {
		return fmt.Errorf("max size must be positive, got %d", a.MaxSizeMB)
	}
	if a.MaxBackups < 0 {
		return fmt.Errorf("max backups must be non-negative, got %d", a.MaxBackups)
	}
	if a.MaxAgeDays < 0 {
		return fmt.Errorf("max age must be non-negative, got %d", a.MaxAgeDays)
	}
	return nil
}

// validateTelemetry validates SSE hub parameters.
func validateTelemetry(t *TelemetryConfig) error {
	if t.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", t.EventBufferSize)
	}
	if t.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", t.HeartbeatInterval)
	}
	if t.ClientQueueSize <= 0 {
		return fmt.Errorf("client queue size must be positive, got %d", t.ClientQueueSize)
	}
	return nil
}
