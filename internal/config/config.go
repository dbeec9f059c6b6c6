// Package config 提供配置加载和管理功能
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var globalConfig *Config

// Config 应用程序配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Search    SearchConfig    `yaml:"search"`
	Whisper   WhisperConfig   `yaml:"whisper"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig HTTP服务器配置
type ServerConfig struct {
	Host            string        `yaml:"host"`                           // 服务器监听地址
	Port            int           `yaml:"port" validate:"gt=0,lte=65535"` // 服务器监听端口
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`               // 优雅关闭超时
	TrustedProxies  []string      `yaml:"trusted_proxies"`                // 可信反向代理的IP或CIDR，为空时不信任 X-Forwarded-For
}

// OllamaConfig Ollama配置
type OllamaConfig struct {
	Host           string        `yaml:"host" validate:"required,url"`      // Ollama服务器地址
	DefaultModel   string        `yaml:"default_model" validate:"required"` // 默认模型名称
	FallbackModels []string      `yaml:"fallback_models"`                   // 模型列表获取失败时的备用列表
	Timeout        time.Duration `yaml:"timeout"`                           // 单轮对话超时
}

// SearchConfig Google自定义搜索配置
type SearchConfig struct {
	APIKey   string        `yaml:"api_key"`   // API密钥
	EngineID string        `yaml:"engine_id"` // 搜索引擎ID
	Endpoint string        `yaml:"endpoint"`  // 接口地址，为空时使用官方地址
	Timeout  time.Duration `yaml:"timeout"`   // 请求超时
}

// WhisperConfig 语音识别服务配置（OpenAI兼容接口）
type WhisperConfig struct {
	BaseURL string        `yaml:"base_url" validate:"required,url"` // 服务地址
	Model   string        `yaml:"model"`                            // 模型名称
	APIKey  string        `yaml:"api_key"`                          // 本地服务一般不需要
	Timeout time.Duration `yaml:"timeout"`                          // 请求超时
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Path            string        `yaml:"path"`              // 对话路径
	ReadBufferSize  int           `yaml:"read_buffer_size"`  // 读缓冲区大小
	WriteBufferSize int           `yaml:"write_buffer_size"` // 写缓冲区大小
	MaxMessageSize  int64         `yaml:"max_message_size"`  // 入站帧最大字节数
	PingPeriod      time.Duration `yaml:"ping_period"`       // 心跳间隔
	PongWait        time.Duration `yaml:"pong_wait"`         // 等待Pong响应的超时时间
	WriteWait       time.Duration `yaml:"write_wait"`        // 单帧写超时
}

// CORSConfig 跨域配置，默认全部放行
type CORSConfig struct {
	Origins     []string `yaml:"origins"`
	Methods     []string `yaml:"methods"`
	Headers     []string `yaml:"headers"`
	Credentials bool     `yaml:"credentials"`
}

// RateLimitConfig HTTP接口限流配置
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps" validate:"gte=0"` // 每秒令牌数
	Burst   int     `yaml:"burst" validate:"gte=0"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Addr 返回监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SearchConfigured 搜索凭据是否齐全
func (c *Config) SearchConfigured() bool {
	return c.Search.APIKey != "" && c.Search.EngineID != ""
}

// GetConfig 获取全局配置实例
func GetConfig() *Config {
	return globalConfig
}

// Default 返回默认配置
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load 从文件加载配置，文件不存在时只使用默认值和环境变量
func Load(filename string) (*Config, error) {
	var config Config

	if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("解析配置文件失败: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// 使用默认值
		default:
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	applyDefaults(&config)
	if err := applyEnv(&config); err != nil {
		return nil, err
	}
	normalize(&config)

	// 验证配置
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	// 设置全局配置
	globalConfig = &config

	return &config, nil
}

// applyDefaults 设置默认值
func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8000
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 10 * time.Second
	}

	if config.Ollama.Host == "" {
		config.Ollama.Host = "http://localhost:11434"
	}
	if config.Ollama.DefaultModel == "" {
		config.Ollama.DefaultModel = "llama3:8b"
	}
	if len(config.Ollama.FallbackModels) == 0 {
		config.Ollama.FallbackModels = []string{"mistral:7b", "llama2:7b", "qwen2:7b"}
	}
	if config.Ollama.Timeout == 0 {
		config.Ollama.Timeout = 60 * time.Second
	}

	if config.Search.Timeout == 0 {
		config.Search.Timeout = 10 * time.Second
	}

	if config.Whisper.BaseURL == "" {
		config.Whisper.BaseURL = "http://localhost:8178/v1"
	}
	if config.Whisper.Model == "" {
		config.Whisper.Model = "whisper-1"
	}
	if config.Whisper.Timeout == 0 {
		config.Whisper.Timeout = 5 * time.Minute
	}

	if config.WebSocket.Path == "" {
		config.WebSocket.Path = "/chat"
	}
	if config.WebSocket.ReadBufferSize == 0 {
		config.WebSocket.ReadBufferSize = 1024
	}
	if config.WebSocket.WriteBufferSize == 0 {
		config.WebSocket.WriteBufferSize = 1024
	}
	if config.WebSocket.MaxMessageSize == 0 {
		config.WebSocket.MaxMessageSize = 1024 * 1024 // 1MB
	}
	if config.WebSocket.PingPeriod == 0 {
		config.WebSocket.PingPeriod = 30 * time.Second
	}
	if config.WebSocket.PongWait == 0 {
		config.WebSocket.PongWait = 60 * time.Second
	}
	if config.WebSocket.WriteWait == 0 {
		config.WebSocket.WriteWait = 10 * time.Second
	}

	if len(config.CORS.Origins) == 0 {
		config.CORS.Origins = []string{"*"}
	}
	if len(config.CORS.Methods) == 0 {
		config.CORS.Methods = []string{"*"}
	}
	if len(config.CORS.Headers) == 0 {
		config.CORS.Headers = []string{"*"}
	}

	if config.RateLimit.RPS == 0 {
		config.RateLimit.RPS = 5
	}
	if config.RateLimit.Burst == 0 {
		config.RateLimit.Burst = 10
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	if config.Tracing.ServiceName == "" {
		config.Tracing.ServiceName = "ai_chat_relay"
	}
}

// applyEnv 使用环境变量覆盖配置
func applyEnv(config *Config) error {
	setString(&config.Ollama.Host, "OLLAMA_HOST")
	setString(&config.Ollama.DefaultModel, "DEFAULT_MODEL")
	setString(&config.Search.APIKey, "GOOGLE_API_KEY")
	setString(&config.Search.EngineID, "SEARCH_ENGINE_ID")
	setString(&config.Whisper.BaseURL, "WHISPER_URL")
	setString(&config.Log.Level, "LOG_LEVEL")
	setList(&config.CORS.Origins, "CORS_ORIGINS")
	setList(&config.CORS.Methods, "CORS_METHODS")
	setList(&config.CORS.Headers, "CORS_HEADERS")

	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("无效的SERVER_PORT: %w", err)
		}
		config.Server.Port = port
	}
	if v := os.Getenv("CORS_CREDENTIALS"); v != "" {
		credentials, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("无效的CORS_CREDENTIALS: %w", err)
		}
		config.CORS.Credentials = credentials
	}
	return nil
}

// normalize 统一大小写，并为不带协议的Ollama地址补上 http://
func normalize(config *Config) {
	config.Log.Level = strings.ToLower(strings.TrimSpace(config.Log.Level))
	config.Log.Format = strings.ToLower(strings.TrimSpace(config.Log.Format))

	host := strings.TrimSpace(config.Ollama.Host)
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	config.Ollama.Host = strings.TrimRight(host, "/")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) > 0 {
		*dst = items
	}
}

// validateConfig 验证配置是否有效
func validateConfig(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return err
	}

	if config.WebSocket.PingPeriod >= config.WebSocket.PongWait {
		return ErrPingPeriod
	}
	return nil
}
