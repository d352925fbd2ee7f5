// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Auth() AuthConfig
	Exchange() ExchangeConfig
	Selectors() SelectorsConfig
	Export() ExportConfig
	Database() DatabaseConfig

	// Setters for values the CLI overrides after load.
	SetBrowserHeadless(bool)
	SetLoggerLevel(string)
	SetExchangeResponseTimeout(time.Duration)
	SetExportOutput(string)
	SetExportFormat(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	AuthCfg      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	ExchangeCfg  ExchangeConfig  `mapstructure:"exchange" yaml:"exchange"`
	SelectorsCfg SelectorsConfig `mapstructure:"selectors" yaml:"selectors"`
	ExportCfg    ExportConfig    `mapstructure:"export" yaml:"export"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Auth() AuthConfig           { return c.AuthCfg }
func (c *Config) Exchange() ExchangeConfig   { return c.ExchangeCfg }
func (c *Config) Selectors() SelectorsConfig { return c.SelectorsCfg }
func (c *Config) Export() ExportConfig       { return c.ExportCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }
func (c *Config) SetLoggerLevel(l string)   { c.LoggerCfg.Level = l }
func (c *Config) SetExchangeResponseTimeout(d time.Duration) {
	c.ExchangeCfg.ResponseTimeout = d
}
func (c *Config) SetExportOutput(p string) { c.ExportCfg.Output = p }
func (c *Config) SetExportFormat(f string) { c.ExportCfg.Format = f }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chromium instance and its disposable profile.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath       string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args           []string      `mapstructure:"args" yaml:"args"`
	WindowWidth    int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight   int           `mapstructure:"window_height" yaml:"window_height"`
	ProfileBaseDir string        `mapstructure:"profile_base_dir" yaml:"profile_base_dir"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ActionTimeout  time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	StartTimeout   time.Duration `mapstructure:"start_timeout" yaml:"start_timeout"`
	CloseTimeout   time.Duration `mapstructure:"close_timeout" yaml:"close_timeout"`
}

// AuthConfig tunes the login state machine.
type AuthConfig struct {
	LoginURL    string        `mapstructure:"login_url" yaml:"login_url"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	ArtifactDir string        `mapstructure:"artifact_dir" yaml:"artifact_dir"`
	Timeouts    AuthTimeouts  `mapstructure:"timeouts" yaml:"timeouts"`
}

// AuthTimeouts bounds each wait in the login flow.
type AuthTimeouts struct {
	LoginButton   time.Duration `mapstructure:"login_button" yaml:"login_button"`
	LoginForm     time.Duration `mapstructure:"login_form" yaml:"login_form"`
	EmailInput    time.Duration `mapstructure:"email_input" yaml:"email_input"`
	Continue      time.Duration `mapstructure:"continue" yaml:"continue"`
	PasswordPage  time.Duration `mapstructure:"password_page" yaml:"password_page"`
	PasswordInput time.Duration `mapstructure:"password_input" yaml:"password_input"`
	Submit        time.Duration `mapstructure:"submit" yaml:"submit"`
	ChatInterface time.Duration `mapstructure:"chat_interface" yaml:"chat_interface"`
}

// ExchangeConfig tunes the send/await/extract protocol.
type ExchangeConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout" yaml:"response_timeout"`
	ControlTimeout  time.Duration `mapstructure:"control_timeout" yaml:"control_timeout"`
	SettleDelay     time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	// InputMode is "paced" (one character at a time) or "atomic".
	InputMode string        `mapstructure:"input_mode" yaml:"input_mode"`
	CharDelay time.Duration `mapstructure:"char_delay" yaml:"char_delay"`
	// ReaderMode is "text" (innerText) or "markdown".
	ReaderMode string `mapstructure:"reader_mode" yaml:"reader_mode"`
}

// SelectorsConfig names every UI marker the engine depends on. Selectors starting
// with "/" or "(" are treated as XPath, everything else as CSS.
type SelectorsConfig struct {
	LoginButton   string `mapstructure:"login_button" yaml:"login_button"`
	LoginForm     string `mapstructure:"login_form" yaml:"login_form"`
	EmailInput    string `mapstructure:"email_input" yaml:"email_input"`
	ContinueBtn   string `mapstructure:"continue_button" yaml:"continue_button"`
	PasswordPage  string `mapstructure:"password_page" yaml:"password_page"`
	PasswordInput string `mapstructure:"password_input" yaml:"password_input"`
	SubmitBtn     string `mapstructure:"submit_button" yaml:"submit_button"`
	ChatInterface string `mapstructure:"chat_interface" yaml:"chat_interface"`
	PromptInput   string `mapstructure:"prompt_input" yaml:"prompt_input"`
	SendButton    string `mapstructure:"send_button" yaml:"send_button"`
	Response      string `mapstructure:"response" yaml:"response"`
	// CompletionMarker only exists once a reply has finished streaming.
	CompletionMarker string `mapstructure:"completion_marker" yaml:"completion_marker"`
}

// ExportConfig controls where and how the transcript is written.
type ExportConfig struct {
	Output         string `mapstructure:"output" yaml:"output"`
	Format         string `mapstructure:"format" yaml:"format"`
	AssistantLabel string `mapstructure:"assistant_label" yaml:"assistant_label"`
}

// DatabaseConfig holds the optional transcript store connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ResolvedFormat returns the export format, falling back to the output file
// extension and finally to csv.
func (e ExportConfig) ResolvedFormat() string {
	if e.Format != "" {
		return strings.ToLower(e.Format)
	}
	switch strings.ToLower(filepath.Ext(e.Output)) {
	case ".xlsx":
		return "xlsx"
	case ".json":
		return "json"
	default:
		return "csv"
	}
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "parley")
	v.SetDefault("logger.log_file", "parley.log")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.window_width", 800)
	v.SetDefault("browser.window_height", 600)
	v.SetDefault("browser.profile_base_dir", "")
	v.SetDefault("browser.poll_interval", "250ms")
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.start_timeout", "30s")
	v.SetDefault("browser.close_timeout", "10s")

	// -- Auth --
	v.SetDefault("auth.login_url", "https://chat.openai.com/auth/login")
	v.SetDefault("auth.max_attempts", 3)
	v.SetDefault("auth.settle_delay", "3s")
	v.SetDefault("auth.retry_delay", "3s")
	v.SetDefault("auth.artifact_dir", ".")
	v.SetDefault("auth.timeouts.login_button", "30s")
	v.SetDefault("auth.timeouts.login_form", "30s")
	v.SetDefault("auth.timeouts.email_input", "10s")
	v.SetDefault("auth.timeouts.continue", "10s")
	v.SetDefault("auth.timeouts.password_page", "10s")
	v.SetDefault("auth.timeouts.password_input", "10s")
	v.SetDefault("auth.timeouts.submit", "10s")
	v.SetDefault("auth.timeouts.chat_interface", "30s")

	// -- Exchange --
	v.SetDefault("exchange.max_attempts", 2)
	v.SetDefault("exchange.retry_delay", "3s")
	v.SetDefault("exchange.response_timeout", "120s")
	v.SetDefault("exchange.control_timeout", "10s")
	v.SetDefault("exchange.settle_delay", "2s")
	v.SetDefault("exchange.input_mode", "paced")
	v.SetDefault("exchange.char_delay", "10ms")
	v.SetDefault("exchange.reader_mode", "text")

	// -- Selectors --
	v.SetDefault("selectors.login_button", "button[data-testid='login-button']")
	v.SetDefault("selectors.login_form", "/html/body/div/main/section/div[1]/h1")
	v.SetDefault("selectors.email_input", "#email-input")
	v.SetDefault("selectors.continue_button", "[name='continue']")
	v.SetDefault("selectors.password_page", "//*[@id='auth0-widget']/main/section/div/div/header/h1")
	v.SetDefault("selectors.password_input", "#password")
	v.SetDefault("selectors.submit_button", "[name='action']")
	v.SetDefault("selectors.chat_interface", "/html/body/div[1]/div/div[1]/div[2]/main/div[1]/div[2]/div/div/div/div/div[1]/div/div/div")
	v.SetDefault("selectors.prompt_input", "div#prompt-textarea")
	v.SetDefault("selectors.send_button", "button[data-testid='send-button']")
	v.SetDefault("selectors.response", "div.markdown")
	v.SetDefault("selectors.completion_marker", "button[data-testid='composer-speech-button']")

	// -- Export --
	v.SetDefault("export.output", "output/conversation.csv")
	v.SetDefault("export.format", "")
	v.SetDefault("export.assistant_label", "assistant")

	// -- Database --
	v.SetDefault("database.url", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "PARLEY_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.BrowserCfg.PollInterval <= 0 {
		return fmt.Errorf("browser.poll_interval must be a positive duration")
	}
	if err := c.AuthCfg.Validate(); err != nil {
		return fmt.Errorf("auth configuration invalid: %w", err)
	}
	if err := c.ExchangeCfg.Validate(); err != nil {
		return fmt.Errorf("exchange configuration invalid: %w", err)
	}
	if err := c.SelectorsCfg.Validate(); err != nil {
		return fmt.Errorf("selectors configuration invalid: %w", err)
	}
	switch c.ExportCfg.ResolvedFormat() {
	case "csv", "xlsx", "json":
	default:
		return fmt.Errorf("export.format %q is not supported (csv, xlsx, json)", c.ExportCfg.Format)
	}
	return nil
}

// Validate checks the AuthConfig settings.
func (a *AuthConfig) Validate() error {
	if a.LoginURL == "" {
		return fmt.Errorf("login_url is required")
	}
	if a.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if a.SettleDelay < 0 || a.RetryDelay < 0 {
		return fmt.Errorf("settle_delay and retry_delay must not be negative")
	}
	return nil
}

// Validate checks the ExchangeConfig settings.
func (e *ExchangeConfig) Validate() error {
	if e.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if e.ResponseTimeout <= 0 {
		return fmt.Errorf("response_timeout must be a positive duration")
	}
	switch e.InputMode {
	case "paced", "atomic":
	default:
		return fmt.Errorf("input_mode %q is not supported (paced, atomic)", e.InputMode)
	}
	switch e.ReaderMode {
	case "text", "markdown":
	default:
		return fmt.Errorf("reader_mode %q is not supported (text, markdown)", e.ReaderMode)
	}
	return nil
}

// Validate ensures no UI marker is left blank.
func (s *SelectorsConfig) Validate() error {
	fields := map[string]string{
		"login_button":      s.LoginButton,
		"login_form":        s.LoginForm,
		"email_input":       s.EmailInput,
		"continue_button":   s.ContinueBtn,
		"password_page":     s.PasswordPage,
		"password_input":    s.PasswordInput,
		"submit_button":     s.SubmitBtn,
		"chat_interface":    s.ChatInterface,
		"prompt_input":      s.PromptInput,
		"send_button":       s.SendButton,
		"response":          s.Response,
		"completion_marker": s.CompletionMarker,
	}
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	return nil
}
