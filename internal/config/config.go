package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	Storage  StorageConfig  `yaml:"storage"`
	HTTP     HTTPConfig     `yaml:"http"`
	JWT      JWTConfig      `yaml:"jwt"`
	Password PasswordConfig `yaml:"password"`
}

// Supported storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

type StorageConfig struct {
	Driver     string      `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite"`
	SQLitePath string      `yaml:"sqlite_path" env:"SQLITE_PATH"`
	Mongo      MongoConfig `yaml:"mongo"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" env:"MONGO_URI"`
	Database string `yaml:"database" env:"MONGO_DATABASE"`
}

type HTTPConfig struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"5s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	CORSOrigins []string      `yaml:"cors_origins" env:"CORS_ORIGINS" env-default:"*"`
}

type JWTConfig struct {
	Secret        string        `yaml:"secret" env:"JWT_SECRET" env-required:"true"`
	Issuer        string        `yaml:"issuer" env:"JWT_ISSUER" env-default:"identity"`
	Audience      string        `yaml:"audience" env:"JWT_AUDIENCE" env-default:"identity-clients"`
	AccessTTL     time.Duration `yaml:"access_ttl" env:"JWT_ACCESS_TTL" env-default:"15m"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" env:"JWT_REFRESH_TTL" env-default:"168h"`
	RefreshPepper string        `yaml:"refresh_pepper" env:"JWT_REFRESH_PEPPER"`
}

type PasswordConfig struct {
	MinLength     int  `yaml:"min_length" env:"PASSWORD_MIN_LENGTH" env-default:"8"`
	RequireUpper  bool `yaml:"require_upper" env-default:"true"`
	RequireLower  bool `yaml:"require_lower" env-default:"true"`
	RequireDigit  bool `yaml:"require_digit" env-default:"true"`
	RequireSymbol bool `yaml:"require_symbol" env-default:"true"`
}

// MustLoad reads the config from the path given by the --config flag or
// the CONFIG_PATH environment variable, falling back to config/local.yaml.
// Panics when the file is missing or cannot be parsed.
func MustLoad() *Config {
	return LoadConfig(fetchConfigPath())
}

func LoadConfig(path string) *Config {
	var cfg Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file not found: " + path)
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}

	return &cfg
}

// fetchConfigPath fetches config path from command line flag or env var.
// Priority: flag > env > default.
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	if res == "" {
		res = "config/local.yaml"
	}

	return res
}
