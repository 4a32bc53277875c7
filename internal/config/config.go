// Package config предоставляет структуры и функции для загрузки конфига сервиса.
//
// Конфиг читается один раз при старте: YAML по пути из CONFIG_PATH,
// поверх него переменные окружения (в том числе из необязательного .env).
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env             string          `yaml:"env" env:"ENV" env-default:"local"`
	Storage         Storage         `yaml:"storage"`
	RedisConnection RedisConnection `yaml:"redis_connection"`
	RabbitMQ        RabbitMQ        `yaml:"rabbitmq"`
	HTTPServer      HTTPServer      `yaml:"http_server"`
	JWTToken        JWTToken        `yaml:"jwttoken"`
	Feed            Feed            `yaml:"feed"`
	OddsCache       OddsCache       `yaml:"odds_cache"`
	Matching        Matching        `yaml:"matching"`
	Trial           Trial           `yaml:"trial"`
	Schedule        Schedule        `yaml:"schedule"`
	Payment         Payment         `yaml:"payment"`
	PlanTable       []PlanConfig    `yaml:"plans"`
	AdminIDs        []int64         `yaml:"admin_ids" env:"ADMIN_IDS" env-separator:","`
}

// Storage настройки хранилища. Driver: postgres или memory.
type Storage struct {
	Driver           string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	ConnectionString string `yaml:"connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath   string `yaml:"migrations_path" env-default:"./migrations"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой Address отключает хранение снимка фида.
type RedisConnection struct {
	Address     string        `yaml:"address" env:"REDIS_ADDRESS"`
	Password    string        `yaml:"password" env:"REDIS_PASSWORD"`
	User        string        `yaml:"user"`
	DB          int           `yaml:"db"`
	MaxRetries  int           `yaml:"max_retries" env-default:"3"`
	DialTimeout time.Duration `yaml:"dial_timeout" env-default:"5s"`
	Timeout     time.Duration `yaml:"timeout" env-default:"3s"`
}

// RabbitMQ настройки брокера.
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	MaxRetries int           `yaml:"max_retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RateLimit   float64       `yaml:"rate_limit" env-default:"5"`
	RateBurst   int           `yaml:"rate_burst" env-default:"10"`
}

// JWTToken структура для работы с jwt-токеном.
type JWTToken struct {
	SecretKey string        `yaml:"secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL  time.Duration `yaml:"token_ttl" env-default:"720h"`
}

// Feed настройки клиента фида коэффициентов.
type Feed struct {
	APIKey    string        `yaml:"api_key" env:"THE_ODDS_API_KEY"`
	BaseURL   string        `yaml:"base_url" env:"FOOTBALL_API_URL" env-default:"https://api.the-odds-api.com/v4/sports/soccer/odds"`
	Regions   string        `yaml:"regions" env-default:"eu"`
	Markets   string        `yaml:"markets" env-default:"h2h"`
	Timeout   time.Duration `yaml:"timeout" env-default:"10s"`
	RateLimit float64       `yaml:"rate_limit" env-default:"1"`
}

// OddsCache настройки кэша снимка фида.
type OddsCache struct {
	TTL         time.Duration `yaml:"ttl" env:"MATCH_CACHE_TTL" env-default:"600s"`
	SnapshotKey string        `yaml:"snapshot_key" env-default:"odds:snapshot"`
}

// Matching целевые пары и диапазон поиска.
type Matching struct {
	TargetRules []TargetRuleConfig `yaml:"target_rules"`
	SearchMin   float64            `yaml:"search_min" env-default:"1.5"`
	SearchMax   float64            `yaml:"search_max" env-default:"5.0"`
}

// TargetRuleConfig целевая пара в виде десятичных строк.
type TargetRuleConfig struct {
	Home       string `yaml:"home"`
	HomePlaces int32  `yaml:"home_places"`
	Away       string `yaml:"away"`
	AwayPlaces int32  `yaml:"away_places"`
}

// Trial настройки пробного доступа.
type Trial struct {
	InitialQuota int `yaml:"initial_quota" env-default:"3"`
}

// Schedule расписание периодических задач (UTC).
type Schedule struct {
	FetchInterval     time.Duration `yaml:"fetch_interval" env-default:"3h"`
	NotifyInterval    time.Duration `yaml:"notify_interval" env-default:"1h"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval" env-default:"10m"`
	ExpiryWarningCron string        `yaml:"expiry_warning_cron" env-default:"0 10 * * *"`
	WeeklyStatsCron   string        `yaml:"weekly_stats_cron" env-default:"0 9 * * 1"`
	ExpiryWindow      time.Duration `yaml:"expiry_window" env-default:"24h"`
}

// Payment настройки платёжного шлюза и вебхука.
type Payment struct {
	ShopID        string `yaml:"shop_id" env:"PAYMENT_SHOP_ID"`
	SecretKey     string `yaml:"secret_key" env:"PAYMENT_SECRET_KEY"`
	APIURL        string `yaml:"api_url" env-default:"https://api.yookassa.ru/v3"`
	ReturnURL     string `yaml:"return_url" env:"PAYMENT_RETURN_URL"`
	Currency      string `yaml:"currency" env-default:"RUB"`
	WebhookSecret string `yaml:"webhook_secret" env:"PAYMENT_WEBHOOK_SECRET"`
}

// PlanConfig строка таблицы тарифов в конфиге.
type PlanConfig struct {
	Kind     string        `yaml:"kind"`
	Title    string        `yaml:"title"`
	Duration time.Duration `yaml:"duration"`
	Price    string        `yaml:"price"`
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс при ошибке.
func MustLoad() *Config {
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Load читает конфиг из файла и проверяет таблицы тарифов и целевых пар.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := cfg.Plans(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := cfg.TargetRules(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Matching.SearchMin > cfg.Matching.SearchMax {
		return nil, fmt.Errorf("%s: search_min %.2f is greater than search_max %.2f",
			op, cfg.Matching.SearchMin, cfg.Matching.SearchMax)
	}
	return &cfg, nil
}

// Plans собирает таблицу тарифов. Без секции plans используются тарифы по умолчанию.
func (c *Config) Plans() (models.Plans, error) {
	if len(c.PlanTable) == 0 {
		return models.DefaultPlans(), nil
	}

	plans := make(models.Plans, len(c.PlanTable))
	for _, p := range c.PlanTable {
		if p.Kind == "" {
			return nil, errors.New("plan kind is empty")
		}
		if p.Duration <= 0 {
			return nil, fmt.Errorf("plan %s: duration must be positive", p.Kind)
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("plan %s: price: %w", p.Kind, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("plan %s: price must be positive", p.Kind)
		}
		kind := models.PlanKind(p.Kind)
		plans[kind] = models.Plan{Kind: kind, Title: p.Title, Duration: p.Duration, Price: price}
	}
	return plans, nil
}

// TargetRules собирает целевые пары. Без секции target_rules используются пары по умолчанию.
func (c *Config) TargetRules() ([]models.TargetRule, error) {
	if len(c.Matching.TargetRules) == 0 {
		return models.DefaultTargetRules(), nil
	}

	rules := make([]models.TargetRule, 0, len(c.Matching.TargetRules))
	for i, r := range c.Matching.TargetRules {
		home, err := decimal.NewFromString(r.Home)
		if err != nil {
			return nil, fmt.Errorf("target rule %d: home: %w", i, err)
		}
		away, err := decimal.NewFromString(r.Away)
		if err != nil {
			return nil, fmt.Errorf("target rule %d: away: %w", i, err)
		}
		if err := checkPlaces(home, r.HomePlaces); err != nil {
			return nil, fmt.Errorf("target rule %d: home: %w", i, err)
		}
		if err := checkPlaces(away, r.AwayPlaces); err != nil {
			return nil, fmt.Errorf("target rule %d: away: %w", i, err)
		}
		rules = append(rules, models.TargetRule{
			Home:       home,
			HomePlaces: r.HomePlaces,
			Away:       away,
			AwayPlaces: r.AwayPlaces,
		})
	}
	return rules, nil
}

// checkPlaces отклоняет точность, при которой округлённая цена не может
// совпасть с целевым значением.
func checkPlaces(target decimal.Decimal, places int32) error {
	if places < 0 {
		return fmt.Errorf("places %d must not be negative", places)
	}
	if !target.Round(places).Equal(target) {
		return fmt.Errorf("%s has more than %d decimal places", target, places)
	}
	return nil
}
