// Package config has a configuration structure
package config

// Config contains configuration data
type Config struct {
	UsernamePostgres string `env:"POSTGRES_USER" envDefault:"postgres"`
	PasswordPostgres string `env:"POSTGRES_PASSWORD" envDefault:"testpassword"`
	HostPostgres     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PortPostgres     string `env:"POSTGRES_PORT" envDefault:"5432"`
	DBNamePostgres   string `env:"POSTGRES_DB" envDefault:"postgres"`

	ServerRedisCache string `env:"SERVER" envDefault:"server1"`
	HostRedisCache   string `env:"HOST" envDefault:"localhost"`
	PortRedisCache   string `env:"PORT" envDefault:"6379"`

	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaTopic   string `env:"KAFKA_TOPIC" envDefault:"accounting-events"`

	QuoteFeedURL     string `env:"QUOTE_FEED_URL" envDefault:"ws://localhost:8081/ticks"`
	QuoteTTLSeconds  int    `env:"QUOTE_TTL_SECONDS" envDefault:"60"`
	AccountCurrency  string `env:"ACCOUNT_CURRENCY" envDefault:"USD"`
	CurrencyExponent int32  `env:"CURRENCY_EXPONENT" envDefault:"2"`

	MarginCallLevel     string `env:"MARGIN_CALL_LEVEL" envDefault:"50"` // percent
	MonitorIntervalMSec int    `env:"MONITOR_INTERVAL_MSEC" envDefault:"1000"`
	TriggerIntervalMSec int    `env:"TRIGGER_INTERVAL_MSEC" envDefault:"500"`
	UpdateRetries       int    `env:"UPDATE_RETRIES" envDefault:"3"`
	SwapIntervalHours   int    `env:"SWAP_INTERVAL_HOURS" envDefault:"24"`
}
