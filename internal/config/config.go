package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DBConfig — параметры подключения к базе данных.
type DBConfig struct {
	// DSN — строка подключения. Если пуста, собирается из Host/Name/User/Password.
	DSN      string
	Host     string
	Name     string
	User     string
	Password string
}

// URL возвращает строку подключения для pgx.
func (c DBConfig) URL() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("postgresql://%s:%s@%s/%s", c.User, c.Password, c.Host, c.Name)
}

// PoolConfig — параметры одного пула соединений.
type PoolConfig struct {
	// Baseline — базовое количество соединений.
	Baseline int

	// Overflow — дополнительные соединения сверх Baseline.
	// Закрываются при возврате, а не остаются в idle.
	Overflow int

	// RecycleAge — максимальный возраст соединения перед пересозданием.
	RecycleAge time.Duration

	// BorrowTimeout — максимальное время ожидания свободного соединения.
	BorrowTimeout time.Duration

	// ValidateOnBorrow — проверять живость соединения перед выдачей.
	ValidateOnBorrow bool
}

// Capacity возвращает жёсткий предел открытых соединений пула.
func (c PoolConfig) Capacity() int {
	return c.Baseline + c.Overflow
}

// RetryConfig — параметры retry в executor.
type RetryConfig struct {
	// MaxRetries — попытки для transient-ошибок соединения.
	MaxRetries int

	// TransientBackoff — базовая задержка для transient-ошибок.
	TransientBackoff time.Duration

	// BudgetMaxRetries — попытки при исчерпании лимита соединений сервера.
	BudgetMaxRetries int

	// BudgetBackoff — базовая задержка при исчерпании лимита.
	BudgetBackoff time.Duration
}

// WikiConfig — параметры доступа к вики-API.
type WikiConfig struct {
	APIURL    string
	UserAgent string
	Timeout   time.Duration
}

// Settings — конфигурация приложения.
//
// Передаётся в фоновые задачи по значению при запуске, чтобы пайплайн
// не зависел от контекста HTTP-запроса.
type Settings struct {
	Database DBConfig

	// Interactive — пул для HTTP-обработчиков.
	Interactive PoolConfig

	// Background — пул для фоновых batch-воркеров.
	Background PoolConfig

	Retry RetryConfig

	Wiki WikiConfig

	// DataDir — каталог для промежуточных файлов задач.
	DataDir string

	// AMQPURL — адрес RabbitMQ; пустая строка отключает событийную шину.
	AMQPURL string

	// APIPort — порт HTTP API.
	APIPort string

	// BatchWorkers — воркеры batch-пула; не должно превышать Background.Baseline.
	BatchWorkers int

	// BatchSize — размер чанка для bulk-операций.
	BatchSize int
}

// Load читает конфигурацию из окружения.
//
// Если рядом лежит .env — он загружается первым (переменные окружения
// имеют приоритет над .env).
func Load() Settings {
	_ = godotenv.Load()

	return Settings{
		Database: DBConfig{
			DSN:      os.Getenv("DB_URL"),
			Host:     envStr("DB_HOST", "localhost:5432"),
			Name:     envStr("DB_NAME", "svgtranslate"),
			User:     envStr("DB_USER", "svgtranslate"),
			Password: envStr("DB_PASSWORD", "svgtranslate"),
		},
		Interactive: PoolConfig{
			Baseline:         envInt("DB_POOL_SIZE", 3),
			Overflow:         envInt("DB_MAX_OVERFLOW", 1),
			RecycleAge:       envDuration("DB_POOL_RECYCLE", time.Hour),
			BorrowTimeout:    envDuration("DB_POOL_TIMEOUT", 30*time.Second),
			ValidateOnBorrow: true,
		},
		Background: PoolConfig{
			Baseline:         envInt("DB_BG_POOL_SIZE", 4),
			Overflow:         envInt("DB_BG_MAX_OVERFLOW", 0),
			RecycleAge:       envDuration("DB_POOL_RECYCLE", time.Hour),
			BorrowTimeout:    envDuration("DB_BG_POOL_TIMEOUT", 60*time.Second),
			ValidateOnBorrow: true,
		},
		Retry: RetryConfig{
			MaxRetries:       envInt("DB_MAX_RETRIES", 3),
			TransientBackoff: envDuration("DB_RETRY_BACKOFF", 200*time.Millisecond),
			BudgetMaxRetries: envInt("DB_BUDGET_MAX_RETRIES", 3),
			BudgetBackoff:    envDuration("DB_BUDGET_BACKOFF", time.Second),
		},
		Wiki: WikiConfig{
			APIURL:    envStr("WIKI_API_URL", "https://commons.wikimedia.org/w/api.php"),
			UserAgent: envStr("WIKI_USER_AGENT", "svg-translate-web/1.0"),
			Timeout:   envDuration("WIKI_TIMEOUT", 30*time.Second),
		},
		DataDir:      envStr("SVG_DATA_DIR", "svg_data"),
		AMQPURL:      os.Getenv("RABBITMQ_URL"),
		APIPort:      envStr("API_PORT", "8080"),
		BatchWorkers: envInt("BATCH_WORKERS", 4),
		BatchSize:    envInt("BATCH_SIZE", 50),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// envDuration принимает либо Go-duration ("30s"), либо целые секунды ("30").
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
