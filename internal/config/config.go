// Package config decodes the process YAML configuration: connection
// settings for MongoDB, RabbitMQ and Redis, browser execution parameters,
// and the paths to the MaxMind databases and emulation device catalogue.
// Mirrors the dataclass shapes in the worker's original model module,
// decoded strictly (unknown keys reject) the way the emulation device
// catalogue is decoded.
package config

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root of the process YAML configuration file.
type Config struct {
	MongoDB   MongoDBConfig   `yaml:"mongodb"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	Browser   BrowserConfig   `yaml:"browser"`
	MaxMindDB MaxMindDBConfig `yaml:"maxminddb"`
	Emulation EmulationConfig `yaml:"emulation"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Storage   StorageConfig   `yaml:"storage"`
}

type MongoDBConfig struct {
	Username             string `yaml:"username"`
	Password             string `yaml:"password"`
	Host                 string `yaml:"host"`
	Port                 string `yaml:"port"`
	Database             string `yaml:"database"`
	RequestCollection    string `yaml:"request_collection"`
	ContentCollection    string `yaml:"content_collection"`
	CertificateCollection string `yaml:"certificate_collection"`
}

// ConnectionURL builds the mongodb:// connection string.
func (c MongoDBConfig) ConnectionURL() string {
	return fmt.Sprintf("mongodb://%s:%s@%s:%s/", c.Username, c.Password, c.Host, c.Port)
}

type RabbitMQConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	URLQueue string `yaml:"url_queue"`
}

// ConnectionURL builds the amqp:// connection string.
func (c RabbitMQConfig) ConnectionURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.Username, c.Password, c.Host, c.Port)
}

type RedisConfig struct {
	Host                 string `yaml:"host"`
	Port                 int    `yaml:"port"`
	ContentDatabase      int    `yaml:"content_database"`
	CertificateDatabase  int    `yaml:"certificate_database"`
}

// Addr returns the host:port form expected by redis.Options.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type MaxMindDBConfig struct {
	ASNDatabasePath     string `yaml:"asn_database_path"`
	CountryDatabasePath string `yaml:"country_database_path"`
}

type EmulationConfig struct {
	EmulationConfigPath string `yaml:"emulation_config"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console struct {
		Enabled bool   `yaml:"enabled"`
		Format  string `yaml:"format"`
	} `yaml:"console"`
	File struct {
		Enabled    bool   `yaml:"enabled"`
		Path       string `yaml:"path"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"file"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	Namespace  string `yaml:"namespace"`
}

// BrowserConfig governs tab concurrency, timeouts and chromedp execution
// arguments. MaxContentSize is expressed in the YAML file as a string like
// "10MB" or "512KB" and resolved to a byte count during decode.
type BrowserConfig struct {
	MaxTabs         int      `yaml:"max_tabs"`
	PageloadTimeout int      `yaml:"pageload_timeout"`
	BrowserTimeout  int      `yaml:"browser_timeout"`
	MinRequestWait  int      `yaml:"min_request_wait"`
	MaxContentSize  string   `yaml:"max_content_size"`
	ExecutablePath  string   `yaml:"executable_path"`
	Proxy           string   `yaml:"proxy"`
	ExecutionArgs   []string `yaml:"execution_args"`

	// Screenshot enables the post-scan full-viewport PNG capture described
	// in SPEC_FULL.md §3 (a supplement over the distilled model, which
	// carries ScanInfo.ScreenshotHash but never wires a producer for it).
	Screenshot bool `yaml:"screenshot"`

	// MaxContentSizeBytes is resolved from MaxContentSize during Load; it
	// is not itself decoded from YAML.
	MaxContentSizeBytes int64 `yaml:"-"`
}

// StorageConfig selects the screenshot-artefact upload backend, the same way
// for every command: "gcs" uploads to GCSBucket; "local" or an empty Backend
// writes under LocalDir, or the working directory when LocalDir is empty.
type StorageConfig struct {
	Backend   string `yaml:"backend"` // "gcs" or "local"
	GCSBucket string `yaml:"gcs_bucket"`
	LocalDir  string `yaml:"local_dir"`
}

// defaultExecutionArgs are always present regardless of what the YAML
// file specifies, matching the worker's DEFAULT_EXECUTION_ARGS.
var defaultExecutionArgs = []string{"--ignore-certificate-errors", "--test-type"}

var contentSizePattern = regexp.MustCompile(`^(\d+)(B|KB|MB)$`)

var contentSizeUnits = map[string]int64{
	"B":  1,
	"KB": 1024,
	"MB": 1024 * 1024,
}

// resolve finalizes a decoded BrowserConfig: folding in the default
// execution args, adding a proxy-server flag when a proxy is configured,
// and parsing MaxContentSize into MaxContentSizeBytes.
func (b *BrowserConfig) resolve() error {
	argSet := make(map[string]struct{}, len(b.ExecutionArgs)+len(defaultExecutionArgs)+1)
	for _, a := range b.ExecutionArgs {
		argSet[a] = struct{}{}
	}
	for _, a := range defaultExecutionArgs {
		argSet[a] = struct{}{}
	}
	if b.Proxy != "" {
		argSet[fmt.Sprintf("--proxy-server=%s", b.Proxy)] = struct{}{}
	}

	merged := make([]string, 0, len(argSet))
	for a := range argSet {
		merged = append(merged, a)
	}
	b.ExecutionArgs = merged

	size := strings.ToUpper(strings.TrimSpace(b.MaxContentSize))
	match := contentSizePattern.FindStringSubmatch(size)
	if match == nil {
		return fmt.Errorf("config: invalid max_content_size %q, must be one of 'B', 'KB', 'MB'", b.MaxContentSize)
	}

	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return fmt.Errorf("config: invalid max_content_size %q: %w", b.MaxContentSize, err)
	}

	b.MaxContentSizeBytes = n * contentSizeUnits[match[2]]
	return nil
}

// Load decodes and validates a Config from raw YAML bytes. Unknown fields
// are rejected, matching the emulation device catalogue's strictness.
func Load(data []byte) (Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Browser.resolve(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
