// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"sensor-dashboard/internal/auth"
)

// EnvPrefix prefixes environment overrides, e.g. DASHBOARD_SENSOR_URL.
const EnvPrefix = "DASHBOARD"

type Config struct {
	Server struct {
		UIPort          int           `mapstructure:"ui_port"`
		WebDir          string        `mapstructure:"web_dir"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	} `mapstructure:"server"`
	Sensor struct {
		URL              string        `mapstructure:"url"`
		Subprotocol      string        `mapstructure:"subprotocol"`
		Origin           string        `mapstructure:"origin"`
		HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
		IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	} `mapstructure:"sensor"`
	Feed struct {
		Capacity           int     `mapstructure:"capacity"`
		LabelLayout        string  `mapstructure:"label_layout"`
		ProximityThreshold float64 `mapstructure:"proximity_threshold"`
	} `mapstructure:"feed"`
	Axes struct {
		Temp  Axis `mapstructure:"temp"`
		Light Axis `mapstructure:"light"`
	} `mapstructure:"axes"`
	Auth auth.Config `mapstructure:"auth"`
	MQTT struct {
		Enabled  bool   `mapstructure:"enabled"`
		Broker   string `mapstructure:"broker"`
		ClientID string `mapstructure:"client_id"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		Topic    string `mapstructure:"topic"`
		QoS      byte   `mapstructure:"qos"`
		Retained bool   `mapstructure:"retained"`
	} `mapstructure:"mqtt"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// Axis is the initial y range of a chart.
type Axis struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// Load reads config.yaml from dir (if present), then applies environment
// overrides on top of the defaults. A missing file is not an error.
func Load(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.UIPort <= 0 || c.Server.UIPort > 65535 {
		return fmt.Errorf("server.ui_port %d out of range", c.Server.UIPort)
	}
	if c.Sensor.URL == "" {
		return errors.New("sensor.url is required")
	}
	if c.Feed.Capacity <= 0 {
		return fmt.Errorf("feed.capacity must be positive, got %d", c.Feed.Capacity)
	}
	if c.MQTT.Enabled && (c.MQTT.Broker == "" || c.MQTT.Topic == "") {
		return errors.New("mqtt.broker and mqtt.topic are required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos %d out of range", c.MQTT.QoS)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.ui_port", 8081)
	v.SetDefault("server.web_dir", "./web")
	v.SetDefault("server.shutdown_timeout", 4*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("sensor.url", "ws://192.168.1.50:3000/")
	v.SetDefault("sensor.subprotocol", "graph-update")
	v.SetDefault("sensor.origin", "")
	v.SetDefault("sensor.handshake_timeout", 5*time.Second)
	v.SetDefault("sensor.idle_timeout", 30*time.Second)

	v.SetDefault("feed.capacity", 10)
	v.SetDefault("feed.label_layout", "15 : 04 : 05")
	v.SetDefault("feed.proximity_threshold", 50.0)

	v.SetDefault("axes.temp.min", 0.0)
	v.SetDefault("axes.temp.max", 40.0)
	v.SetDefault("axes.light.min", 0.0)
	v.SetDefault("axes.light.max", 1000.0)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_expiration", 60)
	v.SetDefault("auth.api_keys", []string{})

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "sensor-dashboard")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "sensor-dashboard/led")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.retained", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
