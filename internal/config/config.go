package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8000"`
	DataPath     string `envconfig:"DATA_PATH" default:"/app/data"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"/app/data/termmux.db"`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	ServersFile  string `envconfig:"SERVERS_FILE" default:""`

	// Layout settings
	NarrowBreakpoint int `envconfig:"NARROW_BREAKPOINT" default:"768"`
	MaxSessions      int `envconfig:"MAX_SESSIONS" default:"6"`

	// Terminal channel settings
	ScrollbackSize int    `envconfig:"SCROLLBACK_SIZE" default:"1048576"`
	DialTimeout    string `envconfig:"DIAL_TIMEOUT" default:"15s"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("TERMMUX", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}
