package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Supported values of LLM_PROVIDER.
const (
	ProviderOpenAI    = "openai"
	ProviderArk       = "ark"
	ProviderLangChain = "langchain"
	ProviderMock      = "mock"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Log    LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	addr, err := resolveAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if cfg.AI.Timeout < 0 {
		return nil, fmt.Errorf("invalid PROVIDER_TIMEOUT value %s", cfg.AI.Timeout)
	}

	return cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	Addr            string
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// resolveAddr 解析服务器监听地址。
func resolveAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string        `env:"LLM_PROVIDER" envDefault:"openai"`
	Model    string        `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`
	Timeout  time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"30s"`
	OpenAI   OpenAIConfig
	Ark      ArkConfig
}

// OpenAIConfig holds credentials for OpenAI-compatible endpoints, used by
// both the openai and langchain providers.
type OpenAIConfig struct {
	APIKey  string `env:"OPENAI_API_KEY"`
	BaseURL string `env:"OPENAI_BASE_URL"`
}

// ArkConfig 描述火山方舟模型配置。
type ArkConfig struct {
	APIKey    string `env:"ARK_API_KEY"`
	AccessKey string `env:"ARK_ACCESS_KEY"`
	SecretKey string `env:"ARK_SECRET_KEY"`
	Model     string `env:"ARK_MODEL"`
	BaseURL   string `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region    string `env:"ARK_REGION" envDefault:"cn-beijing"`
}

// Enabled 表示所选提供方是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch strings.ToLower(c.Provider) {
	case ProviderOpenAI, ProviderLangChain:
		return c.OpenAI.APIKey != ""
	case ProviderArk:
		return c.Ark.Enabled()
	case ProviderMock:
		return true
	default:
		return false
	}
}

// DefaultModel is the model used when a turn request names none.
func (c AIConfig) DefaultModel() string {
	if strings.EqualFold(c.Provider, ProviderArk) && c.Ark.Model != "" {
		return c.Ark.Model
	}
	return c.Model
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
	}

	chatModel, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return chatModel, nil
}

// LogConfig 描述日志输出配置。
type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	File  string `env:"LOG_FILE"`
}
