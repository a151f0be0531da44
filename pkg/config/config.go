package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP       HTTP       `envPrefix:"HTTP_"`
		Logger     Logger     `envPrefix:"LOGGER_"`
		Telemetry  Telemetry  `envPrefix:"TELEMETRY_"`
		Cache      Cache      `envPrefix:"CACHE_"`
		Redis      Redis      `envPrefix:"REDIS_"`
		Transport  Transport  `envPrefix:"TRANSPORT_"`
		Tiles      Tiles      `envPrefix:"TILES_"`
		FirstParty FirstParty `envPrefix:"FIRST_PARTY_"`
	}

	HTTP struct {
		Server Server `envPrefix:"SERVER_"`
	}

	Server struct {
		Port         string        `env:"PORT,required"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level string `env:"LEVEL,required"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"guide-helper-rastersource"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}

	// Cache selects the durable tier behind the in-memory LRU.
	Cache struct {
		Type        string        `env:"TYPE" envDefault:"memory"`
		Capacity    int           `env:"CAPACITY" envDefault:"2048"`
		DefaultTTL  time.Duration `env:"DEFAULT_TTL" envDefault:"24h"`
		TileJSONTTL time.Duration `env:"TILEJSON_TTL" envDefault:"1h"`
		SQLitePath  string        `env:"SQLITE_PATH" envDefault:"file:cache.db?cache=shared"`
		Dir         string        `env:"DIR" envDefault:"./tile-cache"`
	}

	Redis struct {
		Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
		Password string        `env:"PASSWORD" envDefault:""`
		DB       int           `env:"DB" envDefault:"0"`
		TTL      time.Duration `env:"TTL" envDefault:"168h"`
	}

	Transport struct {
		Timeout   time.Duration `env:"TIMEOUT" envDefault:"30s"`
		UserAgent string        `env:"USER_AGENT" envDefault:"GuideHelper/1.0 (https://github.com/jaennil/guide_helper)"`
	}

	Tiles struct {
		PixelRatio    float64 `env:"PIXEL_RATIO" envDefault:"1"`
		InstanceScope string  `env:"INSTANCE_SCOPE" envDefault:""`
	}

	FirstParty struct {
		APIURL      string `env:"API_URL" envDefault:"https://api.mapbox.com"`
		AccessToken string `env:"ACCESS_TOKEN" envDefault:""`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
