// Package config loads process configuration from the environment (and an
// optional .env file) into a single Config value that is passed explicitly to
// every component.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/kelseyhightower/envconfig"

	"energy-forecast/internal/models"
	"energy-forecast/pkg/database"
)

// ConfigErrorType classifies configuration failures.
type ConfigErrorType string

const (
	ErrTypeParse      ConfigErrorType = "PARSE"
	ErrTypeValidation ConfigErrorType = "VALIDATION"
)

// ConfigError is returned by LoadConfig and Validate.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsTransient is always false: configuration does not fix itself.
func (e *ConfigError) IsTransient() bool {
	return false
}

// Config is the root configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Site     SiteConfig
	Upstream UpstreamConfig
	Pipeline PipelineConfig
	Models   ModelsConfig
}

type ServerConfig struct {
	Host         string        `envconfig:"API_HOST" default:"0.0.0.0"`
	Port         int           `envconfig:"API_PORT" default:"8000" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `envconfig:"API_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"API_IDLE_TIMEOUT" default:"60s"`
}

type DatabaseConfig struct {
	Driver          string        `envconfig:"DB_DRIVER" default:"postgres" validate:"oneof=postgres sqlite3"`
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"energy"`
	Password        string        `envconfig:"DB_PASSWORD"`
	Database        string        `envconfig:"DB_NAME" default:"energy"`
	SSLMode         string        `envconfig:"DB_SSLMODE" default:"disable"`
	Path            string        `envconfig:"DB_PATH" default:"data/energy.db"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10" validate:"min=1"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5" validate:"min=0"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
	ConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"5m"`
	BatchSize       int           `envconfig:"DB_BATCH_SIZE" default:"500" validate:"min=1"`
}

type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
}

// SiteConfig holds the coordinates, station and nominal capacities of the
// monitored installation.
type SiteConfig struct {
	Latitude      float64 `envconfig:"SITE_LATITUDE" default:"43.6109" validate:"latitude"`
	Longitude     float64 `envconfig:"SITE_LONGITUDE" default:"3.8763" validate:"longitude"`
	HubeauStation string  `envconfig:"HUBEAU_STATION" default:"Y321002101" validate:"required"`
	Timezone      string  `envconfig:"SITE_TIMEZONE" default:"Europe/Paris" validate:"required"`
	SolarPowerKW  float64 `envconfig:"SOLAR_NOMINAL_POWER_KW" default:"150" validate:"gt=0"`
	WindPowerKW   float64 `envconfig:"WIND_NOMINAL_POWER_KW" default:"100" validate:"gt=0"`
	HydroPowerKW  float64 `envconfig:"HYDRO_NOMINAL_POWER_KW" default:"200" validate:"gt=0"`
}

// NominalPower returns the installed capacity in kW for a producer type.
func (s SiteConfig) NominalPower(p models.ProducerType) float64 {
	switch p {
	case models.Solar:
		return s.SolarPowerKW
	case models.Wind:
		return s.WindPowerKW
	case models.Hydro:
		return s.HydroPowerKW
	}
	return 0
}

type UpstreamConfig struct {
	OpenMeteoForecastURL string        `envconfig:"OPEN_METEO_FORECAST_URL" default:"https://api.open-meteo.com/v1/forecast" validate:"url"`
	OpenMeteoArchiveURL  string        `envconfig:"OPEN_METEO_ARCHIVE_URL" default:"https://archive-api.open-meteo.com/v1/archive" validate:"url"`
	HubeauURL            string        `envconfig:"HUBEAU_URL" default:"https://hubeau.eaufrance.fr/api/v2/hydrometrie/obs_elab" validate:"url"`
	Timeout              time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"60s"`
	MaxRetries           int           `envconfig:"UPSTREAM_MAX_RETRIES" default:"3" validate:"min=0"`
	MinBackoff           time.Duration `envconfig:"UPSTREAM_MIN_BACKOFF" default:"500ms"`
	MaxBackoff           time.Duration `envconfig:"UPSTREAM_MAX_BACKOFF" default:"10s"`
	ForecastDays         int           `envconfig:"FORECAST_DAYS" default:"16" validate:"min=1,max=16"`
	HubeauPageSize       int           `envconfig:"HUBEAU_PAGE_SIZE" default:"20000" validate:"min=1,max=20000"`
	UserAgent            string        `envconfig:"UPSTREAM_USER_AGENT" default:"energy-forecast/1.0"`
}

type PipelineConfig struct {
	WeatherHistoryStart string `envconfig:"WEATHER_HISTORY_START" default:"2016-09-01"`
	HydroHistoryStart   string `envconfig:"HYDRO_HISTORY_START" default:"2022-07-01"`
	DataRawPath         string `envconfig:"DATA_RAW_PATH" default:"data/raw" validate:"required"`
	SolarProductionCSV  string `envconfig:"SOLAR_PRODUCTION_CSV" default:"prod_solaire.csv"`
	WindProductionCSV   string `envconfig:"WIND_PRODUCTION_CSV" default:"prod_eolienne.csv"`
	HydroProductionCSV  string `envconfig:"HYDRO_PRODUCTION_CSV" default:"prod_hydro.csv"`
}

type ModelsConfig struct {
	Path       string `envconfig:"MODELS_PATH" default:"models/saved" validate:"required"`
	ConfigFile string `envconfig:"MODELS_CONFIG_FILE"`
}

// LoadConfig reads .env (if present) and the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{Type: ErrTypeParse, Message: "failed to process environment", Err: err}
	}
	return &cfg, nil
}

// Validate runs struct validation and the cross-field checks. clock supplies
// "today" for the history start checks.
func (c *Config) Validate(clock clockwork.Clock) error {
	if err := validator.New().Struct(c); err != nil {
		return &ConfigError{Type: ErrTypeValidation, Message: "invalid configuration", Err: err}
	}

	if c.Database.Driver == database.DriverSQLite && c.Database.Path == "" {
		return &ConfigError{Type: ErrTypeValidation, Message: "DB_PATH is required for the sqlite3 driver"}
	}

	now := clock.Now()
	for _, start := range []struct{ env, value string }{
		{"WEATHER_HISTORY_START", c.Pipeline.WeatherHistoryStart},
		{"HYDRO_HISTORY_START", c.Pipeline.HydroHistoryStart},
	} {
		t, err := time.Parse(time.DateOnly, start.value)
		if err != nil {
			return &ConfigError{Type: ErrTypeValidation, Message: fmt.Sprintf("%s is not a YYYY-MM-DD date", start.env), Err: err}
		}
		if !t.Before(now) {
			return &ConfigError{Type: ErrTypeValidation, Message: fmt.Sprintf("%s: history start %s must be in the past", start.env, start.value)}
		}
	}

	if c.Upstream.MinBackoff > c.Upstream.MaxBackoff {
		return &ConfigError{Type: ErrTypeValidation, Message: "UPSTREAM_MIN_BACKOFF exceeds UPSTREAM_MAX_BACKOFF"}
	}

	return nil
}

// DatabaseSettings converts to the pkg/database connection settings.
func (c *Config) DatabaseSettings() *database.Config {
	return &database.Config{
		Driver:          c.Database.Driver,
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		Database:        c.Database.Database,
		SSLMode:         c.Database.SSLMode,
		Path:            c.Database.Path,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
	}
}

// WeatherHistoryStart returns the parsed archive start date.
func (c *Config) WeatherHistoryStart() time.Time {
	t, _ := time.Parse(time.DateOnly, c.Pipeline.WeatherHistoryStart)
	return t
}

// HydroHistoryStart returns the parsed Hubeau start date.
func (c *Config) HydroHistoryStart() time.Time {
	t, _ := time.Parse(time.DateOnly, c.Pipeline.HydroHistoryStart)
	return t
}
