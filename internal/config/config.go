// Package config loads server configuration from YAML and PLAYDECK_* env vars.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/playdeck/playdeck/internal/logx"
)

// Config is the typed view of the `server` section.
type Config struct {
	Addr string // HTTP listen address

	DBDSN string // postgres://... or sqlite file:...; empty means local sqlite

	StorageURL string // gocloud bucket URL (file:///..., s3://...); empty means local dir
	StorageDir string // base dir for the default file bucket

	RuntimeDir  string // working directories for unpacked game servers
	PublicHost  string // host advertised to clients for spawned game servers
	Interpreter string // command used to run game entry points

	JWTSecret  string
	TokenTTL   time.Duration
	OnlineTTL  time.Duration // window within which a session counts as online
	SweepEvery time.Duration // room sweep interval; 0 disables the sweeper

	RoomHeartbeatTimeout time.Duration
	ClosedRoomGrace      time.Duration

	Log logx.Options
}

// Load reads the optional config file and environment into a Config.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PLAYDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("storage.dir", "data/packages")
	v.SetDefault("runtime.dir", "data/runtime")
	v.SetDefault("runtime.public_host", "127.0.0.1")
	v.SetDefault("runtime.interpreter", "python3")
	v.SetDefault("auth.token_ttl", "8h")
	v.SetDefault("auth.online_ttl", "20s")
	v.SetDefault("rooms.sweep_every", "5s")
	v.SetDefault("rooms.heartbeat_timeout", "15s")
	v.SetDefault("rooms.closed_grace", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	// YAML friendly: flatten a `server` section when present.
	if sub := v.Sub("server"); sub != nil {
		for _, k := range sub.AllKeys() {
			v.Set(k, sub.Get(k))
		}
	}

	c := &Config{
		Addr:                 v.GetString("addr"),
		DBDSN:                v.GetString("db.dsn"),
		StorageURL:           v.GetString("storage.url"),
		StorageDir:           v.GetString("storage.dir"),
		RuntimeDir:           v.GetString("runtime.dir"),
		PublicHost:           v.GetString("runtime.public_host"),
		Interpreter:          v.GetString("runtime.interpreter"),
		JWTSecret:            v.GetString("auth.jwt_secret"),
		TokenTTL:             v.GetDuration("auth.token_ttl"),
		OnlineTTL:            v.GetDuration("auth.online_ttl"),
		SweepEvery:           v.GetDuration("rooms.sweep_every"),
		RoomHeartbeatTimeout: v.GetDuration("rooms.heartbeat_timeout"),
		ClosedRoomGrace:      v.GetDuration("rooms.closed_grace"),
		Log: logx.Options{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age"),
			Compress:   v.GetBool("log.compress"),
		},
	}
	return c, nil
}
