// Package config loads the server and client settings from a YAML file,
// an optional .env file and KARTLOBBY_ environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ProtocolVersion is exchanged during signaling. Peers with a different
// version are turned away before a data channel is opened.
var ProtocolVersion = "1"

const envPrefix = "KARTLOBBY_"

type Config struct {
	Server    Server    `yaml:"server"`
	Lobby     Lobby     `yaml:"lobby"`
	STUN      STUN      `yaml:"stun"`
	Directory Directory `yaml:"directory"`
	Results   Results   `yaml:"results"`
	Content   Content   `yaml:"content"`
	Client    Client    `yaml:"client"`
	Log       Log       `yaml:"log"`
}

type Server struct {
	Name        string   `yaml:"name" validate:"required,max=255"`
	Password    string   `yaml:"password" validate:"max=255"`
	MaxPlayers  int      `yaml:"max_players" validate:"min=1,max=255"`
	WAN         bool     `yaml:"wan"`
	Listen      string   `yaml:"listen" validate:"required,hostname_port"`
	Control     string   `yaml:"control" validate:"required,hostname_port"`
	ReadyFile   string   `yaml:"ready_file"`
	BannedNames []string `yaml:"banned_names"`
}

type Lobby struct {
	Tick            time.Duration `yaml:"tick" validate:"gt=0"`
	PingInterval    time.Duration `yaml:"ping_interval" validate:"gte=0"`
	ResultTimeout   time.Duration `yaml:"result_timeout" validate:"gt=0"`
	JitterTolerance time.Duration `yaml:"jitter_tolerance" validate:"gte=0"`
	MaxPing         time.Duration `yaml:"max_ping" validate:"gte=0"`
	Major           string        `yaml:"major" validate:"oneof=single grandprix"`
	Minor           string        `yaml:"minor" validate:"oneof=normal timetrial followtheleader threestrikes soccer"`
	RaceCount       uint8         `yaml:"race_count" validate:"min=1"`
	Track           string        `yaml:"track"`
	Laps            uint8         `yaml:"laps" validate:"min=1"`
}

type STUN struct {
	Server string `yaml:"server" validate:"omitempty,hostname_port"`
}

type Directory struct {
	Kind    string `yaml:"kind" validate:"oneof=none consul http"`
	Address string `yaml:"address" validate:"required_unless=Kind none"`
	Service string `yaml:"service"`
}

type Results struct {
	Kind    string `yaml:"kind" validate:"oneof=log nats"`
	URL     string `yaml:"url" validate:"required_if=Kind nats"`
	Subject string `yaml:"subject" validate:"required_if=Kind nats"`
}

type Content struct {
	Dir string `yaml:"dir"`
}

type Client struct {
	ServerURL string   `yaml:"server_url" validate:"omitempty,url"`
	Names     []string `yaml:"names" validate:"dive,required,max=255"`
	Password  string   `yaml:"password"`
	Kart      string   `yaml:"kart"`
	Track     string   `yaml:"track"`
	Laps      uint8    `yaml:"laps"`
	Reversed  bool     `yaml:"reversed"`
}

type Log struct {
	Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	File  string `yaml:"file"`
}

// Default returns a LAN setup that works without a config file.
func Default() Config {
	return Config{
		Server: Server{
			Name:       "kartlobby",
			MaxPlayers: 8,
			Listen:     ":2759",
			Control:    "127.0.0.1:9090",
		},
		Lobby: Lobby{
			Tick:            50 * time.Millisecond,
			PingInterval:    time.Second,
			ResultTimeout:   15 * time.Second,
			JitterTolerance: 100 * time.Millisecond,
			MaxPing:         300 * time.Millisecond,
			Major:           "single",
			Minor:           "normal",
			RaceCount:       1,
			Laps:            3,
		},
		STUN:      STUN{Server: "stun.l.google.com:19302"},
		Directory: Directory{Kind: "none", Service: "kartlobby"},
		Results:   Results{Kind: "log", Subject: "kartlobby.results"},
		Content:   Content{Dir: "data"},
		Client: Client{
			ServerURL: "ws://127.0.0.1:2759/lobby",
			Names:     []string{"player"},
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path (if set) on top of the defaults, applies the environment
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, errors.Wrap(err, "load .env")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"SERVER_NAME":       &c.Server.Name,
		"SERVER_PASSWORD":   &c.Server.Password,
		"SERVER_LISTEN":     &c.Server.Listen,
		"SERVER_CONTROL":    &c.Server.Control,
		"SERVER_READY_FILE": &c.Server.ReadyFile,
		"STUN_SERVER":       &c.STUN.Server,
		"DIRECTORY_KIND":    &c.Directory.Kind,
		"DIRECTORY_ADDRESS": &c.Directory.Address,
		"RESULTS_KIND":      &c.Results.Kind,
		"RESULTS_URL":       &c.Results.URL,
		"RESULTS_SUBJECT":   &c.Results.Subject,
		"CONTENT_DIR":       &c.Content.Dir,
		"CLIENT_SERVER_URL": &c.Client.ServerURL,
		"CLIENT_PASSWORD":   &c.Client.Password,
		"LOG_LEVEL":         &c.Log.Level,
		"LOG_FILE":          &c.Log.File,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "SERVER_WAN"); ok {
		wan, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, envPrefix+"SERVER_WAN")
		}
		c.Server.WAN = wan
	}
	if v, ok := os.LookupEnv(envPrefix + "SERVER_MAX_PLAYERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, envPrefix+"SERVER_MAX_PLAYERS")
		}
		c.Server.MaxPlayers = n
	}
	if v, ok := os.LookupEnv(envPrefix + "CLIENT_NAMES"); ok {
		c.Client.Names = strings.Split(v, ",")
	}
	return nil
}
