package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Duration accepts Go duration strings ("15s", "2m") in config files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	str := strings.TrimSpace(string(text))
	if str == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(str)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", str, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration %q must not be negative", str)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML lets yaml.v3 reuse the text form.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

type BoardConfig struct {
	URL           string   `toml:"url" yaml:"url"`
	Cookie        string   `toml:"cookie" yaml:"cookie"`
	UserAgent     string   `toml:"user_agent" yaml:"user_agent"`
	File          string   `toml:"file" yaml:"file"`
	Timeout       Duration `toml:"timeout" yaml:"timeout"`
	RowsMin       int      `toml:"rows_min" yaml:"rows_min" validate:"gte=1"`
	RowsMax       int      `toml:"rows_max" yaml:"rows_max" validate:"gtefield=RowsMin"`
	ExcludedNames []string `toml:"excluded_names" yaml:"excluded_names"`
	Timezone      string   `toml:"timezone" yaml:"timezone"`
}

type EngineConfig struct {
	PollIntervalS          int    `toml:"poll_interval_s" yaml:"poll_interval_s" validate:"gte=1"`
	UIRefreshIntervalS     int    `toml:"ui_refresh_interval_s" yaml:"ui_refresh_interval_s" validate:"gte=1"`
	DefaultClassMinutes    int    `toml:"default_class_minutes" yaml:"default_class_minutes" validate:"gte=1"`
	ClassMinutesMin        int    `toml:"class_minutes_min" yaml:"class_minutes_min" validate:"gte=1"`
	ClassMinutesMax        int    `toml:"class_minutes_max" yaml:"class_minutes_max" validate:"gtefield=ClassMinutesMin"`
	AdjustStep             int    `toml:"adjust_step" yaml:"adjust_step" validate:"gte=1"`
	AutoDepart             *bool  `toml:"auto_depart" yaml:"auto_depart"`
	InitialLoadSuppress    *bool  `toml:"initial_load_suppress" yaml:"initial_load_suppress"`
	ConsecFailureThreshold int    `toml:"consec_failure_threshold" yaml:"consec_failure_threshold" validate:"gte=1"`
	AutoStart              *bool  `toml:"auto_start" yaml:"auto_start"`
	DailyReset             string `toml:"daily_reset" yaml:"daily_reset"`
}

type GridConfig struct {
	ColumnsMin         int `toml:"columns_min" yaml:"columns_min" validate:"gte=1"`
	ColumnsMax         int `toml:"columns_max" yaml:"columns_max" validate:"gtefield=ColumnsMin"`
	CardNominalWidthPx int `toml:"card_nominal_width_px" yaml:"card_nominal_width_px" validate:"gte=1"`
}

type NotifyConfig struct {
	Voice        *bool    `toml:"voice" yaml:"voice"`
	Desktop      *bool    `toml:"desktop" yaml:"desktop"`
	SpeakCommand []string `toml:"speak_command" yaml:"speak_command"`
	BeepCommand  []string `toml:"beep_command" yaml:"beep_command"`
}

type QueueConfig struct {
	Backend   string `toml:"backend" yaml:"backend" validate:"oneof=memory redis"`
	RedisAddr string `toml:"redis_addr" yaml:"redis_addr" validate:"required_if=Backend redis"`
	Key       string `toml:"key" yaml:"key"`
	Size      int    `toml:"size" yaml:"size" validate:"gte=1"`
}

type MQTTConfig struct {
	Broker   string `toml:"broker" yaml:"broker"`
	Topic    string `toml:"topic" yaml:"topic"`
	ClientID string `toml:"client_id" yaml:"client_id"`
}

type HTTPConfig struct {
	Listen         string   `toml:"listen" yaml:"listen"`
	AllowedOrigins []string `toml:"allowed_origins" yaml:"allowed_origins"`
}

type IPCConfig struct {
	Bus string `toml:"bus" yaml:"bus" validate:"oneof=session system"`
}

type LogConfig struct {
	Debug bool `toml:"debug" yaml:"debug"`
}

type Config struct {
	Board  BoardConfig  `toml:"board" yaml:"board"`
	Engine EngineConfig `toml:"engine" yaml:"engine"`
	Grid   GridConfig   `toml:"grid" yaml:"grid"`
	Notify NotifyConfig `toml:"notify" yaml:"notify"`
	Queue  QueueConfig  `toml:"queue" yaml:"queue"`
	MQTT   MQTTConfig   `toml:"mqtt" yaml:"mqtt"`
	HTTP   HTTPConfig   `toml:"http" yaml:"http"`
	IPC    IPCConfig    `toml:"ipc" yaml:"ipc"`
	Log    LogConfig    `toml:"log" yaml:"log"`
}

// DefaultExcludedNames are board labels that show up in row text and are never student names.
var DefaultExcludedNames = []string{
	"등원", "하원", "출석", "결석", "지각", "조퇴", "메모", "전체", "학생", "상태", "알림", "수업",
}

func boolPtr(v bool) *bool { return &v }

// SetDefault fills every unset option with its default value.
func (c *Config) SetDefault() {
	if c.Board.Timeout.Duration == 0 {
		c.Board.Timeout.Duration = 15 * time.Second
	}
	if c.Board.RowsMin == 0 {
		c.Board.RowsMin = 1
	}
	if c.Board.RowsMax == 0 {
		c.Board.RowsMax = 300
	}
	if c.Board.ExcludedNames == nil {
		c.Board.ExcludedNames = append([]string(nil), DefaultExcludedNames...)
	}
	if c.Board.Timezone == "" {
		c.Board.Timezone = "Asia/Seoul"
	}

	if c.Engine.PollIntervalS == 0 {
		c.Engine.PollIntervalS = 10
	}
	if c.Engine.UIRefreshIntervalS == 0 {
		c.Engine.UIRefreshIntervalS = 1
	}
	if c.Engine.DefaultClassMinutes == 0 {
		c.Engine.DefaultClassMinutes = 90
	}
	if c.Engine.ClassMinutesMin == 0 {
		c.Engine.ClassMinutesMin = 30
	}
	if c.Engine.ClassMinutesMax == 0 {
		c.Engine.ClassMinutesMax = 240
	}
	if c.Engine.AdjustStep == 0 {
		c.Engine.AdjustStep = 10
	}
	if c.Engine.AutoDepart == nil {
		c.Engine.AutoDepart = boolPtr(true)
	}
	if c.Engine.InitialLoadSuppress == nil {
		c.Engine.InitialLoadSuppress = boolPtr(true)
	}
	if c.Engine.ConsecFailureThreshold == 0 {
		c.Engine.ConsecFailureThreshold = 3
	}
	if c.Engine.AutoStart == nil {
		c.Engine.AutoStart = boolPtr(false)
	}
	if c.Engine.DailyReset == "" {
		c.Engine.DailyReset = "0 0 * * *"
	}

	if c.Grid.ColumnsMin == 0 {
		c.Grid.ColumnsMin = 3
	}
	if c.Grid.ColumnsMax == 0 {
		c.Grid.ColumnsMax = 8
	}
	if c.Grid.CardNominalWidthPx == 0 {
		c.Grid.CardNominalWidthPx = 240
	}

	if c.Notify.Voice == nil {
		c.Notify.Voice = boolPtr(true)
	}
	if c.Notify.Desktop == nil {
		c.Notify.Desktop = boolPtr(true)
	}

	if c.Queue.Backend == "" {
		c.Queue.Backend = "memory"
	}
	if c.Queue.Key == "" {
		c.Queue.Key = "attok:events"
	}
	if c.Queue.Size == 0 {
		c.Queue.Size = 64
	}

	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "attok/events"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "attokwarden"
	}

	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8088"
	}
	if c.HTTP.AllowedOrigins == nil {
		c.HTTP.AllowedOrigins = []string{"*"}
	}

	if c.IPC.Bus == "" {
		c.IPC.Bus = "session"
	}
}

var validate = validator.New()

// Validate checks ranges and cross-field constraints. Call after SetDefault.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	e := c.Engine
	if e.DefaultClassMinutes < e.ClassMinutesMin || e.DefaultClassMinutes > e.ClassMinutesMax {
		return fmt.Errorf("invalid config: default_class_minutes %d outside [%d, %d]",
			e.DefaultClassMinutes, e.ClassMinutesMin, e.ClassMinutesMax)
	}
	if _, err := time.LoadLocation(c.Board.Timezone); err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.Board.Timezone, err)
	}
	return nil
}

// Default returns a config holding only default values.
func Default() *Config {
	var c Config
	c.SetDefault()
	return &c
}

// LoadConfigFromFile reads a TOML (or YAML, by extension) config file.
// A missing file yields the defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadConfigFromYAML(data)
	default:
		return LoadConfigFromBytes(data)
	}
}

func LoadConfigFromBytes(data []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	config.SetDefault()
	return &config, nil
}

func LoadConfigFromYAML(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	config.SetDefault()
	return &config, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv overrides secrets and endpoints from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ATTOK_BOARD_URL"); v != "" {
		c.Board.URL = v
	}
	if v := os.Getenv("ATTOK_BOARD_COOKIE"); v != "" {
		c.Board.Cookie = v
	}
	if v := os.Getenv("ATTOK_REDIS_ADDR"); v != "" {
		c.Queue.RedisAddr = v
	}
	if v := os.Getenv("ATTOK_MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Board.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (e EngineConfig) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalS) * time.Second
}

func (e EngineConfig) UIRefreshInterval() time.Duration {
	return time.Duration(e.UIRefreshIntervalS) * time.Second
}
