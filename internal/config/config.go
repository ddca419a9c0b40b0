// Package config は通知サービスの設定を環境変数から読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ストアバックエンドの種類。
const (
	BackendSQLite    = "sqlite"
	BackendMongo     = "mongo"
	BackendCassandra = "cassandra"
)

// Config は通知サービスの設定。起動時に一度だけ読み込み、各コンポーネントに注入する。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string `env:"PORT" envDefault:"8086"`
	// JWTSecret はベアラートークンの署名検証に使う共有シークレット。
	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`

	// StoreBackend は通知ストアの実装（sqlite, mongo, cassandra）。
	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`
	// SQLitePath はSQLiteデータベースファイルのパス。
	SQLitePath string `env:"SQLITE_PATH" envDefault:"/data/notification.db"`
	// MongoURI はMongoDBの接続URI。
	MongoURI string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	// MongoDatabase はMongoDBのデータベース名。
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"notifyhub"`
	// CassandraHosts はCassandraのホスト一覧。
	CassandraHosts []string `env:"CASSANDRA_HOSTS" envSeparator:"," envDefault:"127.0.0.1"`
	// CassandraKeyspace はCassandraのキースペース名。
	CassandraKeyspace string `env:"CASSANDRA_KEYSPACE" envDefault:"notifications"`

	// EventStoreURL はイベント送信先のEvent StoreのベースURL。空の場合は送信しない。
	EventStoreURL string `env:"EVENTSTORE_URL"`
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// TenantScoped が有効な場合、通知の可視性判定にテナント一致を加える。
	TenantScoped bool `env:"TENANT_SCOPED" envDefault:"false"`
	// EmptyListNotFound が有効な場合、可視な通知が0件の一覧取得をNotFoundとして扱う。
	EmptyListNotFound bool `env:"EMPTY_LIST_NOT_FOUND" envDefault:"true"`
	// EnforceGetVisibility が有効な場合、ID指定の取得にも可視性判定を適用する。
	EnforceGetVisibility bool `env:"ENFORCE_GET_VISIBILITY" envDefault:"true"`
	// MaxCASAttempts は既読状態の更新で競合が起きた場合の最大試行回数。
	MaxCASAttempts int `env:"MAX_CAS_ATTEMPTS" envDefault:"8"`

	// BreakerMaxFailures は連続失敗がこの回数に達するとストアへの呼び出しを遮断する。
	BreakerMaxFailures uint32 `env:"BREAKER_MAX_FAILURES" envDefault:"5"`
	// BreakerOpenTimeout は遮断状態から半開状態に移るまでの時間。
	BreakerOpenTimeout time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"30s"`

	// LogLevel はログレベル。
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// LogFormat はログの出力形式（json または text）。
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	// LogFile はログファイルのパス。空の場合は標準エラー出力のみ。
	LogFile string `env:"LOG_FILE"`
}

// Load は .env ファイル（存在する場合）と環境変数から設定を読み込む。
func Load(dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		// 既に設定済みの環境変数は上書きしない
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("%s の読み込みに失敗: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("環境変数の解析に失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendSQLite, BackendMongo, BackendCassandra:
	default:
		return fmt.Errorf("未対応のストアバックエンドです: %q", c.StoreBackend)
	}
	if c.MaxCASAttempts < 1 {
		return fmt.Errorf("MAX_CAS_ATTEMPTS は1以上である必要があります: %d", c.MaxCASAttempts)
	}
	return nil
}
