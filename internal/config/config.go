package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	binanceKeyENV     = "BINANCE_API_KEY"
	binanceSecretENV  = "BINANCE_API_SECRET"
)

type Config struct {
	Telegram struct {
		Token      string `yaml:"token"`
		UserChatID int64  `yaml:"user_chat_id"`
		OpsChatID  int64  `yaml:"ops_chat_id"`
	} `yaml:"telegram"`
	DB      string `yaml:"db_dsn"`
	Binance struct {
		RestURL   string `yaml:"rest_url"`
		WsURL     string `yaml:"ws_url"`
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
	} `yaml:"binance"`
	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`

	// Monitor cadences. Watchers poll the candle cache every WatcherPoll;
	// strategies run a full order cycle every StrategyCycle.
	WatcherPoll   time.Duration `yaml:"watcher_poll"`
	StrategyCycle time.Duration `yaml:"strategy_cycle"`
	ErrorBackoff  time.Duration `yaml:"error_backoff"`

	// The two watcher families historically carried different cooldowns;
	// both are kept configurable instead of unified.
	AlarmCooldown time.Duration `yaml:"alarm_cooldown"`
	AlertCooldown time.Duration `yaml:"alert_cooldown"`

	// Feed is torn down and re-dialed after ReconnectAfter even without
	// errors — exchange-side staleness is not always signaled.
	ReconnectAfter time.Duration `yaml:"reconnect_after"`

	// Expression sandbox limits.
	EvalTimeout  time.Duration `yaml:"eval_timeout"`
	EvalMaxDepth int           `yaml:"eval_max_depth"`

	// Order placement retry policy.
	PlaceAttempts    int           `yaml:"place_attempts"`
	PlaceBackoffBase time.Duration `yaml:"place_backoff_base"`
}

func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	config := Config{
		WatcherPoll:      durationFromEnv("WATCHER_POLL", "3s"),
		StrategyCycle:    durationFromEnv("STRATEGY_CYCLE", "2m"),
		ErrorBackoff:     durationFromEnv("ERROR_BACKOFF", "5s"),
		AlarmCooldown:    durationFromEnv("ALARM_COOLDOWN", "30s"),
		AlertCooldown:    durationFromEnv("ALERT_COOLDOWN", "60s"),
		ReconnectAfter:   durationFromEnv("RECONNECT_AFTER", "12h"),
		EvalTimeout:      durationFromEnv("EVAL_TIMEOUT", "200ms"),
		EvalMaxDepth:     intFromEnv("EVAL_MAX_DEPTH", 64),
		PlaceAttempts:    intFromEnv("PLACE_ATTEMPTS", 3),
		PlaceBackoffBase: durationFromEnv("PLACE_BACKOFF_BASE", "1s"),
	}
	config.Binance.RestURL = getenvDefault("BINANCE_REST_URL", "https://api.binance.com")
	config.Binance.WsURL = getenvDefault("BINANCE_WS_URL", "wss://stream.binance.com:9443")

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	if file, err := os.Open("configs/" + configFileName); err == nil {
		decoder := yaml.NewDecoder(file)
		err = decoder.Decode(&config)
		_ = file.Close()
		if err != nil {
			return nil, err
		}
	}

	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if key := os.Getenv(binanceKeyENV); key != "" {
		config.Binance.APIKey = key
	}
	if secret := os.Getenv(binanceSecretENV); secret != "" {
		config.Binance.APISecret = secret
	}

	return &config, nil
}

// CooldownFor returns the notification cooldown for a watcher family.
func (c *Config) CooldownFor(family string) time.Duration {
	if family == "alarm" {
		return c.AlarmCooldown
	}
	return c.AlertCooldown
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
