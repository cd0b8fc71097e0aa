// Package config loads WaffleMaker's daemon configuration from a single YAML
// file, the way the teacher's cmd/warren apply command loads its resource
// manifests.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon's top-level configuration.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogJSON   bool   `yaml:"log_json"`
	DataDir   string `yaml:"data_dir"`

	HTTP     HTTPConfig     `yaml:"http"`
	Source   SourceConfig   `yaml:"source"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Vault    VaultConfig    `yaml:"vault"`
	DNS      DNSConfig      `yaml:"dns"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Queue    QueueConfig    `yaml:"queue"`
}

// SourceConfig locates the local clone of the source repository the
// Planner diffs (§4.1). The clone is kept fast-forwarded to each push's
// after commit by internal/app before Plan is called.
type SourceConfig struct {
	RepoPath string `yaml:"repo_path"`
	CloneURL string `yaml:"clone_url"`
}

// HTTPConfig holds listen addresses and auth credentials for the three HTTP
// surfaces in §6: the source webhook, the image-registry webhook, and the
// bearer-token management API.
type HTTPConfig struct {
	WebhookAddr       string `yaml:"webhook_addr"`
	ManagementAddr    string `yaml:"management_addr"`
	ManagementToken   string `yaml:"management_token"`
	SourceHMACSecret  string `yaml:"source_hmac_secret"`
	RegistryUser      string `yaml:"registry_user"`
	RegistryPassword  string `yaml:"registry_password"`
}

// PostgresConfig configures both the Registry connection and the default
// host/database used to build POSTGRES_URL for dependent services.
type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	ServiceHost  string `yaml:"service_host"`
	ServiceDB    string `yaml:"service_database"`
}

// RedisConfig configures the default host used to build REDIS_URL for
// dependent services.
type RedisConfig struct {
	ServiceHost string `yaml:"service_host"`
}

// VaultConfig configures the external secret store client.
type VaultConfig struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token"`
}

// DNSConfig configures the DnsProvider.
type DNSConfig struct {
	ListenAddr string   `yaml:"listen_addr"`
	Zone       string   `yaml:"zone"`
	Upstream   []string `yaml:"upstream"`
}

// RuntimeConfig configures the ContainerDriver.
type RuntimeConfig struct {
	ContainerdSocket string `yaml:"containerd_socket"`
	Namespace        string `yaml:"namespace"`
}

// QueueConfig configures the worker pool.
type QueueConfig struct {
	Workers int `yaml:"workers"`
}

// Defaults returns a Config with production-sane defaults, mirroring the
// fallbacks applied by the teacher's DNS/log configuration constructors.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		DataDir:  "/var/lib/wafflemaker",
		HTTP: HTTPConfig{
			WebhookAddr:    ":9090",
			ManagementAddr: ":9091",
		},
		DNS: DNSConfig{
			ListenAddr: "127.0.0.1:5353",
			Zone:       "services.internal",
			Upstream:   []string{"8.8.8.8:53"},
		},
		Runtime: RuntimeConfig{
			Namespace: "wafflemaker",
		},
		Queue: QueueConfig{
			Workers: 4,
		},
	}
}

// Load reads and parses a YAML config file at path, applying Defaults()
// first so a sparse file only needs to override what differs.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.Vault.Address == "" {
		return fmt.Errorf("vault.address is required")
	}
	if c.HTTP.ManagementToken == "" {
		return fmt.Errorf("http.management_token is required")
	}
	if c.Source.RepoPath == "" {
		return fmt.Errorf("source.repo_path is required")
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 4
	}
	return nil
}

// LeaseTickInterval computes the LeaseManager's tick period from the
// minimum TTL among currently tracked leases, per §4.5: min(all TTLs)/2,
// clamped to [30s, 300s].
func LeaseTickInterval(minTTL time.Duration) time.Duration {
	const (
		floor = 30 * time.Second
		ceil  = 300 * time.Second
	)
	interval := minTTL / 2
	if interval < floor {
		return floor
	}
	if interval > ceil {
		return ceil
	}
	return interval
}
