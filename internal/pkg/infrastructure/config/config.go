package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/registry"
)

const EnvPrefix = "SENSREG"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

type Config struct {
	HTTP       HTTPConfig      `mapstructure:"http"`
	Log        LogConfig       `mapstructure:"log"`
	Storage    StorageConfig   `mapstructure:"storage"`
	Registry   RegistryConfig  `mapstructure:"registry"`
	Technician string          `mapstructure:"technician"`
	Dashboard  DashboardConfig `mapstructure:"dashboard"`
	Sessions   SessionsConfig  `mapstructure:"sessions"`
	Messaging  MessagingConfig `mapstructure:"messaging"`
}

type HTTPConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type StorageConfig struct {
	Driver   string         `mapstructure:"driver"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Keys     KeysConfig     `mapstructure:"keys"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	DBName   string `mapstructure:"dbname"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KeysConfig struct {
	Sensors string `mapstructure:"sensors"`
	Sites   string `mapstructure:"sites"`
}

type RegistryConfig struct {
	Seed  int64        `mapstructure:"seed"`
	Sites []SiteConfig `mapstructure:"sites"`
}

type SiteConfig struct {
	ID        string  `mapstructure:"id"`
	Name      string  `mapstructure:"name"`
	Info      string  `mapstructure:"info"`
	SeedCount int     `mapstructure:"seed_count"`
	Latitude  float64 `mapstructure:"lat"`
	Longitude float64 `mapstructure:"lng"`
}

type DashboardConfig struct {
	Refresh string `mapstructure:"refresh"`
}

type SessionsConfig struct {
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	Prune       string        `mapstructure:"prune"`
}

type MessagingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

//New returns a viper instance with every default set and environment overrides enabled
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.port", "8880")
	v.SetDefault("log.level", "info")
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.sqlite.path", "sensors.db")
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.user", "postgres")
	v.SetDefault("storage.postgres.dbname", "sensors")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.keys.sensors", registry.DefaultKeys().Sensors)
	v.SetDefault("storage.keys.sites", registry.DefaultKeys().Sites)
	v.SetDefault("registry.seed", 0)
	v.SetDefault("registry.sites", defaultSites())
	v.SetDefault("technician", "Parker")
	v.SetDefault("dashboard.refresh", "@every 10s")
	v.SetDefault("sessions.idle_timeout", "2h")
	v.SetDefault("sessions.prune", "@every 5m")
	v.SetDefault("messaging.enabled", false)
	v.SetDefault("messaging.service_name", "iot-sensor-service")

	return v
}

func defaultSites() []map[string]any {
	sites := []map[string]any{}
	for _, s := range registry.DefaultSites() {
		sites = append(sites, map[string]any{
			"id":         s.ID,
			"name":       s.Name,
			"info":       s.Info,
			"seed_count": s.SeedCount,
			"lat":        s.Latitude,
			"lng":        s.Longitude,
		})
	}
	return sites
}

//Load reads the optional config file at path on top of the defaults and validates the result
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

//Validate checks the storage driver and the site catalogue
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres, DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Storage.Keys.Sensors == "" || c.Storage.Keys.Sites == "" {
		return errors.New("storage keys must not be empty")
	}

	if c.Storage.Keys.Sensors == c.Storage.Keys.Sites {
		return errors.New("sensor and site storage keys must differ")
	}

	seen := map[string]bool{}
	for _, site := range c.Registry.Sites {
		if strings.TrimSpace(site.ID) == "" {
			return errors.New("site catalogue entry without id")
		}
		if site.ID == domain.NoSiteID {
			return fmt.Errorf("site id %q is reserved", domain.NoSiteID)
		}
		if seen[site.ID] {
			return fmt.Errorf("site %s is listed twice", site.ID)
		}
		if site.SeedCount < 0 || site.SeedCount > registry.MaxSeedCount {
			return fmt.Errorf("site %s seed count %d is outside 0..%d", site.ID, site.SeedCount, registry.MaxSeedCount)
		}
		seen[site.ID] = true
	}

	return nil
}

//Catalogue converts the configured sites for the registry
func (c Config) Catalogue() []registry.SiteSpec {
	specs := []registry.SiteSpec{}
	for _, site := range c.Registry.Sites {
		specs = append(specs, registry.SiteSpec{
			ID:        site.ID,
			Name:      site.Name,
			Info:      site.Info,
			SeedCount: site.SeedCount,
			Latitude:  site.Latitude,
			Longitude: site.Longitude,
		})
	}
	return specs
}

//Keys returns the storage keys of the two registry collections
func (c Config) Keys() registry.Keys {
	return registry.Keys{Sensors: c.Storage.Keys.Sensors, Sites: c.Storage.Keys.Sites}
}

//PostgresConfig returns the connection parameters of the postgres driver
func (c Config) PostgresConfig() database.PostgresConfig {
	p := c.Storage.Postgres
	return database.PostgresConfig{
		Host:     p.Host,
		User:     p.User,
		DBName:   p.DBName,
		Password: p.Password,
		SSLMode:  p.SSLMode,
	}
}
