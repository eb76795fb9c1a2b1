// Package conf loads syncbridge settings from a YAML file, .env files and
// SYNCBRIDGE_* environment variables.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides, e.g. SYNCBRIDGE_ENGINE_WORKERS.
const EnvPrefix = "SYNCBRIDGE"

// Settings is the root configuration.
type Settings struct {
	Debug bool

	Main struct {
		Name string // instance name, used as MQTT client id and Sentry server name
	}

	Log struct {
		Level    string // trace, debug, info, warn, error
		Format   string // json or text
		Timezone string
		Console  bool
		File     struct {
			Enabled    bool
			Path       string
			MaxSize    int // megabytes
			MaxBackups int
			MaxAge     int // days
			Compress   bool
		}
	}

	Database DatabaseSettings
	Queue    QueueSettings
	Engine   EngineSettings

	MappingStore struct {
		Backend  string        // database or http
		URL      string        // base URL when backend is http
		Token    string        // static bearer token
		CacheTTL time.Duration // positive lookup cache, 0 disables
	}

	HTTP HTTPSettings

	Sync struct {
		SelfOrigin string // provenance marker written by this system into the source
		MQTT       MQTTSettings
		Kafka      KafkaSettings
	}

	Domains []DomainSettings

	API struct {
		Listen string // admin API listen address
		URL    string // admin API base URL used by CLI subcommands
	}

	Sentry struct {
		Enabled     bool
		DSN         string
		Environment string
		SampleRate  float64
	}

	Notify struct {
		URLs    []string // shoutrrr service URLs
		Timeout time.Duration
	}

	Metrics struct {
		Enabled bool
		Path    string
	}
}

// DatabaseSettings selects the SQL backend for mappings, history and the durable queue.
type DatabaseSettings struct {
	Type   string // sqlite, mysql or postgres
	SQLite struct {
		Path string
	}
	MySQL struct {
		Host     string
		Port     int
		Username string
		Password string
		Database string
	}
	Postgres struct {
		DSN string
	}
	SlowQueryThreshold time.Duration
}

// QueueSettings configures the at-least-once task queue.
type QueueSettings struct {
	Backend           string        // memory or database
	VisibilityTimeout time.Duration // how long a received message stays hidden
	MaxDeliveries     int           // deliveries before a message is dead-lettered
	ReceiveBatch      int           // messages fetched per receive call
	PollInterval      time.Duration // wait between empty receives
}

// EngineSettings tunes the migration engine.
type EngineSettings struct {
	Workers             int
	PageSize            int
	EstimatePageSize    int
	CompletionThreshold int           // consecutive quiet status checks before finalizing
	BusyDelay           time.Duration // status check delay while work remains
	QuietDelay          time.Duration // status check delay while the queue looks empty
	RetryBaseDelay      time.Duration // first redelivery delay after a handler error
	RetryMaxDelay       time.Duration
}

// HTTPSettings configures outbound calls to source, target and mapping services.
type HTTPSettings struct {
	Timeout    time.Duration
	RateLimit  float64 // requests per second per client, 0 disables
	Burst      int
	RetryCount int // transport retries for idempotent GET requests only
	Breaker    struct {
		MaxRequests      uint32
		Interval         time.Duration
		Timeout          time.Duration
		FailureThreshold uint32
	}
}

// MQTTSettings configures the MQTT sync event subscriber.
type MQTTSettings struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      int
}

// KafkaSettings configures the Kafka sync event consumer.
type KafkaSettings struct {
	Enabled bool
	Brokers []string
	GroupID string
}

// DomainSettings describes one entity domain served by a REST source and target.
type DomainSettings struct {
	Name      string
	SourceURL string
	TargetURL string
	Token     string
	PageSize  int               // overrides engine.pagesize when set
	FieldMap  map[string]string // source field -> target field, "" drops the field
	SyncTopic string            // MQTT/Kafka topic carrying change events for this domain

	// MappingURL overrides {mappingstore.url}/{name} when the http mapping backend is used.
	MappingURL string
}

// Load reads configuration into a new Settings. configFile may be empty, in which case
// config.yaml is searched in the working directory, $HOME/.config/syncbridge and
// /etc/syncbridge. A missing config file is not an error.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if v == nil {
		v = viper.New()
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, path := range defaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// Domain returns the settings of a named domain.
func (s *Settings) Domain(name string) (DomainSettings, bool) {
	for _, d := range s.Domains {
		if d.Name == name {
			return d, true
		}
	}
	return DomainSettings{}, false
}

// EffectivePageSize returns the domain page size, falling back to the engine default.
func (s *Settings) EffectivePageSize(d DomainSettings) int {
	if d.PageSize > 0 {
		return d.PageSize
	}
	return s.Engine.PageSize
}

// EffectiveMappingURL returns the mapping service endpoint of a domain. Each domain
// gets its own collection below mappingstore.url unless it names one explicitly.
func (s *Settings) EffectiveMappingURL(d DomainSettings) string {
	if d.MappingURL != "" {
		return d.MappingURL
	}
	if s.MappingStore.URL == "" {
		return ""
	}
	return strings.TrimRight(s.MappingStore.URL, "/") + "/" + d.Name
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	return nil
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "syncbridge"))
	}
	return append(paths, "/etc/syncbridge")
}
