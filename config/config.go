package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/glimte/kafka-bridge/internal/reliability"
)

// Broker drivers
const (
	DriverKafka    = "kafka"
	DriverRabbitMQ = "rabbitmq"
)

// Config is built once at startup and never modified afterwards
type Config struct {
	// Broker
	BrokerDriver string
	KafkaBrokers []string
	RabbitMQURL  string
	Topic        string
	Group        string
	Partition    int
	SASLUsername string
	SASLPassword string

	// PubNub
	PubNubHost   string
	Channel      string
	ChannelRoot  string
	PublishKey   string
	SubscribeKey string
	PublishRate  float64
	ReadTimeout  time.Duration
	StrictStatus bool
	Agent        string

	// Retry
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration
	RetryJitter     bool

	// Logging and monitoring
	LogLevel      string
	LogFormat     string
	HealthAddr    string
	StatsInterval time.Duration
}

// Load reads the given .env files (or ./.env when it exists and none are
// given), then the environment, and validates the result. Every problem
// found is reported in one error.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}

	var problems []string
	check := func(err error) {
		if err != nil {
			problems = append(problems, err.Error())
		}
	}

	c := &Config{}

	// Broker
	loadEnvString(&c.BrokerDriver, "BROKER_DRIVER", DriverKafka)
	loadEnvStringSlice(&c.KafkaBrokers, "KAFKA_BROKERS", nil)
	loadEnvString(&c.RabbitMQURL, "RABBITMQ_URL", "")
	loadEnvString(&c.Topic, "KAFKA_TOPIC", "")
	loadEnvString(&c.Group, "KAFKA_GROUP", "")
	check(loadEnvIntRequired(&c.Partition, "KAFKA_PARTITION"))
	loadEnvString(&c.SASLUsername, "SASL_USERNAME", "")
	loadEnvString(&c.SASLPassword, "SASL_PASSWORD", "")

	// PubNub
	loadEnvString(&c.PubNubHost, "PUBNUB_HOST", "psdsn.pubnub.com:80")
	loadEnvString(&c.Channel, "PUBNUB_CHANNEL", "")
	loadEnvString(&c.ChannelRoot, "PUBNUB_CHANNEL_ROOT", "")
	loadEnvString(&c.PublishKey, "PUBNUB_PUBLISH_KEY", "")
	loadEnvString(&c.SubscribeKey, "PUBNUB_SUBSCRIBE_KEY", "")
	check(loadEnvFloat(&c.PublishRate, "PUBNUB_PUBLISH_RATE", 0))
	check(loadEnvDuration(&c.ReadTimeout, "PUBNUB_READ_TIMEOUT", 0))
	check(loadEnvBool(&c.StrictStatus, "PUBNUB_STRICT_STATUS", false))
	loadEnvString(&c.Agent, "BRIDGE_AGENT", "kafka-bridge")

	// Retry
	check(loadEnvDuration(&c.RetryBackoff, "RETRY_BACKOFF", time.Second))
	check(loadEnvDuration(&c.RetryMaxBackoff, "RETRY_MAX_BACKOFF", time.Second))
	check(loadEnvBool(&c.RetryJitter, "RETRY_JITTER", false))

	// Logging and monitoring
	loadEnvString(&c.LogLevel, "LOG_LEVEL", "info")
	loadEnvString(&c.LogFormat, "LOG_FORMAT", "json")
	loadEnvString(&c.HealthAddr, "HEALTH_ADDR", "")
	check(loadEnvDuration(&c.StatsInterval, "STATS_INTERVAL", 0))

	if err := c.Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("configuration invalid: %s", strings.Join(problems, "; "))
	}
	return c, nil
}

func loadEnvString(target *string, key, defaultValue string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
}

func loadEnvIntRequired(target *int, key string) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fmt.Errorf("missing %s", key)
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer value for %s: %q", key, value)
	}
	*target = parsed
	return nil
}

func loadEnvFloat(target *float64, key string, defaultValue float64) error {
	*target = defaultValue
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number value for %s: %q", key, value)
		}
		*target = parsed
	}
	return nil
}

func loadEnvBool(target *bool, key string, defaultValue bool) error {
	*target = defaultValue
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %q", key, value)
		}
		*target = parsed
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	*target = defaultValue
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %q", key, value)
		}
		*target = parsed
	}
	return nil
}

func loadEnvStringSlice(target *[]string, key string, defaultValue []string) {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		*target = defaultValue
		return
	}

	*target = nil
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*target = append(*target, v)
		}
	}
}

// Validate reports every missing or inconsistent setting
func (c *Config) Validate() error {
	var problems []string
	require := func(value, key string) {
		if value == "" {
			problems = append(problems, "missing "+key)
		}
	}

	switch c.BrokerDriver {
	case DriverKafka:
		if len(c.KafkaBrokers) == 0 {
			problems = append(problems, "missing KAFKA_BROKERS")
		}
	case DriverRabbitMQ:
		require(c.RabbitMQURL, "RABBITMQ_URL")
		if c.RabbitMQURL != "" {
			if u, err := url.Parse(c.RabbitMQURL); err != nil || (u.Scheme != "amqp" && u.Scheme != "amqps") {
				problems = append(problems, "RABBITMQ_URL must be an amqp:// URL")
			}
		}
	default:
		problems = append(problems, fmt.Sprintf("BROKER_DRIVER must be %s or %s", DriverKafka, DriverRabbitMQ))
	}

	require(c.Topic, "KAFKA_TOPIC")
	require(c.Channel, "PUBNUB_CHANNEL")
	require(c.PublishKey, "PUBNUB_PUBLISH_KEY")
	require(c.SubscribeKey, "PUBNUB_SUBSCRIBE_KEY")

	if c.Partition < 0 && c.Group == "" {
		problems = append(problems, "KAFKA_GROUP is required when KAFKA_PARTITION is negative")
	}

	if _, _, err := net.SplitHostPort(c.PubNubHost); err != nil {
		problems = append(problems, "PUBNUB_HOST must be host:port")
	}
	if c.PublishRate < 0 {
		problems = append(problems, "PUBNUB_PUBLISH_RATE must not be negative")
	}
	if c.ReadTimeout < 0 || c.StatsInterval < 0 {
		problems = append(problems, "timeouts and intervals must not be negative")
	}
	if c.RetryBackoff <= 0 {
		problems = append(problems, "RETRY_BACKOFF must be positive")
	}
	if c.RetryMaxBackoff < c.RetryBackoff {
		problems = append(problems, "RETRY_MAX_BACKOFF must not be below RETRY_BACKOFF")
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		problems = append(problems, "LOG_FORMAT must be json or text")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// ParseLevel maps a LOG_LEVEL value onto a slog level
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, errors.New("LOG_LEVEL must be debug, info, warn or error")
	}
	return l, nil
}

// Level returns the configured log level
func (c *Config) Level() slog.Level {
	l, _ := ParseLevel(c.LogLevel)
	return l
}

// RetryPolicy builds the policy shared by every reconnect and redelivery
func (c *Config) RetryPolicy() reliability.RetryPolicy {
	return reliability.NewBackoff(c.RetryBackoff, c.RetryMaxBackoff, c.RetryJitter)
}

// SubscribeChannel is the channel read from PubNub, prefixed by the root
func (c *Config) SubscribeChannel() string {
	if c.ChannelRoot == "" {
		return c.Channel
	}
	return c.ChannelRoot + "." + c.Channel
}

// DashboardURL points the PubNub debug console at the subscribed channel
func (c *Config) DashboardURL() string {
	q := url.Values{}
	q.Set("channel", c.SubscribeChannel())
	q.Set("sub", c.SubscribeKey)
	q.Set("pub", c.PublishKey)
	return "https://www.pubnub.com/docs/console?" + q.Encode()
}

// LogValue implements slog.LogValuer without exposing credentials
func (c *Config) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("driver", c.BrokerDriver),
		slog.String("topic", c.Topic),
		slog.String("group", c.Group),
		slog.Int("partition", c.Partition),
		slog.String("pubnub_host", c.PubNubHost),
		slog.String("channel", c.SubscribeChannel()),
		slog.Duration("retry_backoff", c.RetryBackoff),
		slog.Duration("retry_max_backoff", c.RetryMaxBackoff),
	}
	if c.BrokerDriver == DriverKafka {
		attrs = append(attrs,
			slog.String("brokers", strings.Join(c.KafkaBrokers, ",")),
			slog.Bool("sasl", c.SASLUsername != ""))
	}
	return slog.GroupValue(attrs...)
}
