package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type StreamMode string

const (
	StreamModeNone      StreamMode = "none"
	StreamModeGRPC      StreamMode = "grpc"
	StreamModeWebSocket StreamMode = "websocket"
	HardcodedVersion    string     = "v0.1.0"
)

type Config struct {
	HostID          string        `yaml:"host_id"`
	ListenHost      string        `yaml:"host"`
	ListenPort      int           `yaml:"port"`
	DockerHost      string        `yaml:"docker_host"`
	NvidiaSMIPath   string        `yaml:"nvidia_smi"`
	StaticDir       string        `yaml:"static_dir"`
	CPUSampleWindow time.Duration `yaml:"cpu_sample_window"`
	AccelTimeout    time.Duration `yaml:"accel_timeout"`
	RuntimeTimeout  time.Duration `yaml:"runtime_timeout"`
	ActionTimeout   time.Duration `yaml:"action_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	InspectWorkers  int           `yaml:"inspect_workers"`
	HealthInterval  time.Duration `yaml:"health_interval"`
	ReconnectWait   time.Duration `yaml:"reconnect_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	StreamMode      StreamMode    `yaml:"stream_mode"`
	StreamInterval  time.Duration `yaml:"stream_interval"`
	StreamBackoff   time.Duration `yaml:"stream_error_backoff"`
	BackendGRPCAddr string        `yaml:"backend_grpc_addr"`
	BackendWSURL    string        `yaml:"backend_ws_url"`
	BackendToken    string        `yaml:"backend_token"`
	GRPCMethod      string        `yaml:"grpc_snapshot_method"`
	WSWriteTimeout  time.Duration `yaml:"ws_write_timeout"`
	WSPingInterval  time.Duration `yaml:"ws_ping_interval"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	TLSSkipVerify   bool          `yaml:"tls_skip_verify"`
	TLSCAPath       string        `yaml:"tls_ca_path"`
	TLSCertPath     string        `yaml:"tls_cert_path"`
	TLSKeyPath      string        `yaml:"tls_key_path"`
	LogJSON         bool          `yaml:"log_json"`
	LogLevel        string        `yaml:"log_level"`
	AgentVersion    string        `yaml:"-"`
}

func Defaults() Config {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	return Config{
		HostID:          hostname,
		ListenHost:      "0.0.0.0",
		ListenPort:      3000,
		DockerHost:      "unix:///var/run/docker.sock",
		NvidiaSMIPath:   "nvidia-smi",
		StaticDir:       "public",
		CPUSampleWindow: time.Second,
		AccelTimeout:    5 * time.Second,
		RuntimeTimeout:  10 * time.Second,
		ActionTimeout:   30 * time.Second,
		RequestTimeout:  30 * time.Second,
		InspectWorkers:  8,
		HealthInterval:  10 * time.Second,
		ReconnectWait:   3 * time.Second,
		ShutdownTimeout: 20 * time.Second,
		StreamMode:      StreamModeNone,
		StreamInterval:  5 * time.Second,
		StreamBackoff:   1500 * time.Millisecond,
		BackendGRPCAddr: "127.0.0.1:3001",
		BackendWSURL:    "ws://127.0.0.1:3001/ws/snapshots",
		GRPCMethod:      "/dockctl.telemetry.v1.TelemetryService/StreamSnapshots",
		WSWriteTimeout:  5 * time.Second,
		WSPingInterval:  10 * time.Second,
		LogLevel:        "info",
		AgentVersion:    HardcodedVersion,
	}
}

// Load resolves configuration from, in increasing precedence: defaults, the
// YAML file named by --config or DOCKCTL_CONFIG, environment, then flags.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("dockctl", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	host := fs.String("host", "", "listen host (env HOST)")
	port := fs.Int("port", 0, "listen port (env PORT)")
	dockerHost := fs.String("docker-host", "", "docker daemon address (env DOCKCTL_DOCKER_HOST)")
	logLevel := fs.String("log-level", "", "debug|info|warn|error (env DOCKCTL_LOG_LEVEL)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Defaults()

	path := firstNonEmpty(*configPath, strings.TrimSpace(os.Getenv("DOCKCTL_CONFIG")))
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()

	if fs.Changed("host") {
		cfg.ListenHost = *host
	}
	if fs.Changed("port") {
		cfg.ListenPort = *port
	}
	if fs.Changed("docker-host") {
		cfg.DockerHost = *dockerHost
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = strings.ToLower(*logLevel)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HostID = env("DOCKCTL_HOST_ID", c.HostID)
	c.ListenHost = env("HOST", c.ListenHost)
	c.ListenPort = envInt("PORT", c.ListenPort)
	c.DockerHost = env("DOCKCTL_DOCKER_HOST", c.DockerHost)
	c.NvidiaSMIPath = env("DOCKCTL_NVIDIA_SMI", c.NvidiaSMIPath)
	c.StaticDir = env("DOCKCTL_STATIC_DIR", c.StaticDir)
	c.CPUSampleWindow = envDuration("DOCKCTL_CPU_SAMPLE_WINDOW", c.CPUSampleWindow)
	c.AccelTimeout = envDuration("DOCKCTL_ACCEL_TIMEOUT", c.AccelTimeout)
	c.RuntimeTimeout = envDuration("DOCKCTL_RUNTIME_TIMEOUT", c.RuntimeTimeout)
	c.ActionTimeout = envDuration("DOCKCTL_ACTION_TIMEOUT", c.ActionTimeout)
	c.RequestTimeout = envDuration("DOCKCTL_REQUEST_TIMEOUT", c.RequestTimeout)
	c.InspectWorkers = envInt("DOCKCTL_INSPECT_WORKERS", c.InspectWorkers)
	c.HealthInterval = envDuration("DOCKCTL_HEALTH_INTERVAL", c.HealthInterval)
	c.ReconnectWait = envDuration("DOCKCTL_RECONNECT_INTERVAL", c.ReconnectWait)
	c.ShutdownTimeout = envDuration("DOCKCTL_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.StreamMode = StreamMode(strings.ToLower(env("DOCKCTL_STREAM_MODE", string(c.StreamMode))))
	c.StreamInterval = envDuration("DOCKCTL_STREAM_INTERVAL", c.StreamInterval)
	c.StreamBackoff = envDuration("DOCKCTL_STREAM_ERROR_BACKOFF", c.StreamBackoff)
	c.BackendGRPCAddr = env("DOCKCTL_BACKEND_GRPC_ADDR", c.BackendGRPCAddr)
	c.BackendWSURL = env("DOCKCTL_BACKEND_WS_URL", c.BackendWSURL)
	c.BackendToken = env("DOCKCTL_BACKEND_TOKEN", c.BackendToken)
	c.GRPCMethod = env("DOCKCTL_GRPC_SNAPSHOT_METHOD", c.GRPCMethod)
	c.WSWriteTimeout = envDuration("DOCKCTL_WS_WRITE_TIMEOUT", c.WSWriteTimeout)
	c.WSPingInterval = envDuration("DOCKCTL_WS_PING_INTERVAL", c.WSPingInterval)
	c.TLSEnabled = envBool("DOCKCTL_TLS_ENABLED", c.TLSEnabled)
	c.TLSSkipVerify = envBool("DOCKCTL_TLS_SKIP_VERIFY", c.TLSSkipVerify)
	c.TLSCAPath = env("DOCKCTL_TLS_CA_PATH", c.TLSCAPath)
	c.TLSCertPath = env("DOCKCTL_TLS_CERT_PATH", c.TLSCertPath)
	c.TLSKeyPath = env("DOCKCTL_TLS_KEY_PATH", c.TLSKeyPath)
	c.LogJSON = envBool("DOCKCTL_LOG_JSON", c.LogJSON)
	c.LogLevel = strings.ToLower(env("DOCKCTL_LOG_LEVEL", c.LogLevel))
}

func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.ListenPort))
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.HostID) == "" {
		return errors.New("DOCKCTL_HOST_ID is required")
	}
	if strings.TrimSpace(c.ListenHost) == "" {
		return errors.New("HOST must not be empty")
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("PORT %d out of range", c.ListenPort)
	}
	if strings.TrimSpace(c.DockerHost) == "" {
		return errors.New("DOCKCTL_DOCKER_HOST is required")
	}
	if c.InspectWorkers <= 0 {
		return errors.New("DOCKCTL_INSPECT_WORKERS must be > 0")
	}
	durations := map[string]time.Duration{
		"DOCKCTL_CPU_SAMPLE_WINDOW":  c.CPUSampleWindow,
		"DOCKCTL_ACCEL_TIMEOUT":      c.AccelTimeout,
		"DOCKCTL_RUNTIME_TIMEOUT":    c.RuntimeTimeout,
		"DOCKCTL_ACTION_TIMEOUT":     c.ActionTimeout,
		"DOCKCTL_REQUEST_TIMEOUT":    c.RequestTimeout,
		"DOCKCTL_HEALTH_INTERVAL":    c.HealthInterval,
		"DOCKCTL_RECONNECT_INTERVAL": c.ReconnectWait,
		"DOCKCTL_SHUTDOWN_TIMEOUT":   c.ShutdownTimeout,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", key)
		}
	}
	if c.RequestTimeout <= c.CPUSampleWindow {
		return errors.New("DOCKCTL_REQUEST_TIMEOUT must exceed DOCKCTL_CPU_SAMPLE_WINDOW")
	}
	switch c.StreamMode {
	case StreamModeNone:
	case StreamModeGRPC:
		if c.BackendGRPCAddr == "" {
			return errors.New("DOCKCTL_BACKEND_GRPC_ADDR is required for grpc mode")
		}
		if strings.TrimSpace(c.GRPCMethod) == "" {
			return errors.New("DOCKCTL_GRPC_SNAPSHOT_METHOD is required for grpc mode")
		}
	case StreamModeWebSocket:
		if c.BackendWSURL == "" {
			return errors.New("DOCKCTL_BACKEND_WS_URL is required for websocket mode")
		}
	default:
		return fmt.Errorf("unsupported stream mode %q", c.StreamMode)
	}
	if c.StreamMode != StreamModeNone && c.StreamInterval <= 0 {
		return errors.New("DOCKCTL_STREAM_INTERVAL must be > 0")
	}
	return nil
}

func (c Config) TLSConfig() (*tls.Config, error) {
	if !c.TLSEnabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.TLSSkipVerify}
	if c.TLSCAPath != "" {
		caBytes, err := os.ReadFile(c.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, errors.New("append CA cert failed")
		}
		tlsCfg.RootCAs = pool
	}
	if c.TLSCertPath != "" || c.TLSKeyPath != "" {
		if c.TLSCertPath == "" || c.TLSKeyPath == "" {
			return nil, errors.New("both TLS cert and key are required")
		}
		crt, err := tls.LoadX509KeyPair(c.TLSCertPath, c.TLSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load mTLS cert/key: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{crt}
	}
	return tlsCfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
