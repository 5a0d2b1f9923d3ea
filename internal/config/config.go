package config

import (
	"time"

	"github.com/paphko/habpanelviewer/internal/permission"
)

// Config represents the complete service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Handlers    HandlersConfig    `yaml:"handlers"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Audit       AuditConfig       `yaml:"audit"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Report      ReportConfig      `yaml:"report"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"HPV_SERVER_ADDR"`
	ReadTimeout     time.Duration `yaml:"readTimeout" env:"HPV_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" env:"HPV_SERVER_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idleTimeout" env:"HPV_SERVER_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"HPV_SERVER_SHUTDOWN_TIMEOUT"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	// Required rejects requests without a valid token; false serves the API open (dev mode)
	Required      bool   `yaml:"required" env:"HPV_AUTH_REQUIRED"`
	Algorithm     string `yaml:"algorithm" env:"HPV_AUTH_ALGORITHM"`
	Secret        string `yaml:"secret" env:"HPV_AUTH_SECRET"`
	PublicKeyFile string `yaml:"publicKeyFile" env:"HPV_AUTH_PUBLIC_KEY_FILE"`
}

// HandlersConfig defines the registered capability handlers, in routing order.
type HandlersConfig struct {
	Toggles []ToggleConfig `yaml:"toggles"`
	Capture CaptureConfig  `yaml:"capture"`
}

// ToggleConfig defines one on/off command pair.
type ToggleConfig struct {
	// Capability selects the back-end, e.g. "radio" or "bluetooth"
	Capability string `yaml:"capability"`

	// Label prefixes the missing-permission reason; empty yields "permission missing"
	Label string `yaml:"label"`

	On          string   `yaml:"onCommand"`
	Off         string   `yaml:"offCommand"`
	Permissions []string `yaml:"permissions"`
	Vendor      string   `yaml:"vendor"`
}

// CaptureConfig defines the screen-capture command pair.
type CaptureConfig struct {
	Enabled    bool   `yaml:"enabled" env:"HPV_CAPTURE_ENABLED"`
	Start      string `yaml:"start"`
	Stop       string `yaml:"stop"`
	Permission string `yaml:"permission"`
	Vendor     string `yaml:"vendor"`
}

// PermissionsConfig holds the host permissions granted at startup.
type PermissionsConfig struct {
	Granted []string `yaml:"granted" env:"HPV_PERMISSIONS_GRANTED" envSeparator:","`
}

// AuditConfig holds audit log settings.
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled" env:"HPV_AUDIT_ENABLED"`
	Dir        string `yaml:"dir" env:"HPV_AUDIT_DIR"`
	MaxSizeMB  int    `yaml:"maxSizeMb" env:"HPV_AUDIT_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"maxBackups" env:"HPV_AUDIT_MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"maxAgeDays" env:"HPV_AUDIT_MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"HPV_AUDIT_COMPRESS"`
}

// TelemetryConfig holds SSE hub settings.
type TelemetryConfig struct {
	EventBufferSize   int           `yaml:"eventBufferSize" env:"HPV_TELEMETRY_EVENT_BUFFER_SIZE"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval" env:"HPV_TELEMETRY_HEARTBEAT_INTERVAL"`
	ClientQueueSize   int           `yaml:"clientQueueSize" env:"HPV_TELEMETRY_CLIENT_QUEUE_SIZE"`
}

// ReportConfig holds asynchronous reporting settings.
type ReportConfig struct {
	QueueSize int `yaml:"queueSize" env:"HPV_REPORT_QUEUE_SIZE"`
}

// TracingConfig holds OpenTelemetry export settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" env:"HPV_TRACING_ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"HPV_TRACING_ENDPOINT"`
	Insecure    bool   `yaml:"insecure" env:"HPV_TRACING_INSECURE"`
	ServiceName string `yaml:"serviceName" env:"HPV_TRACING_SERVICE_NAME"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Required:  false,
			Algorithm: "HS256",
		},
		Handlers: HandlersConfig{
			Toggles: []ToggleConfig{
				{
					Capability:  "radio",
					On:          "RADIO_ON",
					Off:         "RADIO_OFF",
					Permissions: []string{permission.RadioControl},
				},
				{
					Capability: "bluetooth",
					Label:      "bluetooth",
					On:         "BLUETOOTH_ON",
					Off:        "BLUETOOTH_OFF",
					Permissions: []string{
						permission.BluetoothAdmin,
						permission.BluetoothScan,
						permission.BluetoothConnect,
					},
				},
			},
			Capture: CaptureConfig{
				Enabled:    true,
				Start:      "CAPTURE_START",
				Stop:       "CAPTURE_STOP",
				Permission: permission.ScreenCapture,
			},
		},
		Permissions: PermissionsConfig{
			Granted: []string{},
		},
		Audit: AuditConfig{
			Enabled:    true,
			Dir:        "/var/log/hpvcmd",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   false,
		},
		Telemetry: TelemetryConfig{
			EventBufferSize:   50,
			HeartbeatInterval: 15 * time.Second,
			ClientQueueSize:   100,
		},
		Report: ReportConfig{
			QueueSize: 256,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			ServiceName: "hpvcmd",
		},
	}
}

// CommandNames returns every command name the configured handlers claim, in
// registration order.
func (h HandlersConfig) CommandNames() []string {
	var names []string
	for _, t := range h.Toggles {
		names = append(names, t.On, t.Off)
	}
	if h.Capture.Enabled {
		names = append(names, h.Capture.Start, h.Capture.Stop)
	}
	return names
}
