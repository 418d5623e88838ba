package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/scene-studio/backend/internal/storage"
)

// DefaultImageModel 是未配置时使用的生图模型。
const DefaultImageModel = "doubao-seedream-4-5-251128"

// 支持的聊天后端与存储后端。
const (
	ChatBackendArk    = "ark"
	ChatBackendOpenAI = "openai"

	StoreMemory   = "memory"
	StoreBadger   = "badger"
	StorePostgres = "postgres"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Ark       ArkConfig
	Agents    AgentsConfig
	Store     StoreConfig
	Storage   StorageConfig
	ToolsFile string `env:"TOOLS_FILE"`
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// Addr 由 Port 归一化得到。
	Addr string `env:"-"`
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// ArkConfig 描述方舟平台的公共凭证。
type ArkConfig struct {
	APIKey      string `env:"ARK_API_KEY"`
	AccessKey   string `env:"ARK_ACCESS_KEY"`
	SecretKey   string `env:"ARK_SECRET_KEY"`
	BaseURL     string `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region      string `env:"ARK_REGION" envDefault:"cn-beijing"`
	MaxTokens   int    `env:"ARK_MAX_TOKENS"`
	ChatBackend string `env:"CHAT_BACKEND" envDefault:"ark"`
}

// AgentsConfig 描述各个智能体的模型与独立密钥。
type AgentsConfig struct {
	VisionModel string `env:"DOUBAO_VISION_MODEL_ID"`
	ImageModel  string `env:"DOUBAO_IMAGE_MODEL_ID" envDefault:"doubao-seedream-4-5-251128"`

	MuseumAPIKey      string `env:"ARK_MUSEUM_API_KEY"`
	MuseumVisionModel string `env:"DOUBAO_MUSEUM_VISION_MODEL_ID"`
	MuseumImageModel  string `env:"DOUBAO_MUSEUM_IMAGE_MODEL_ID"`

	ResearchAPIKey string `env:"ARK_RESEARCH_API_KEY"`
	ResearchModel  string `env:"DOUBAO_RESEARCH_LITE_MODEL_ID"`

	StreamTimeout time.Duration `env:"AGENT_STREAM_TIMEOUT" envDefault:"120s"`
	ImageTimeout  time.Duration `env:"AGENT_IMAGE_TIMEOUT" envDefault:"90s"`
}

// StoreConfig 选择会话持久化后端。
type StoreConfig struct {
	Backend     string `env:"STORE_BACKEND" envDefault:"memory"`
	BadgerDir   string `env:"BADGER_DIR" envDefault:"data/badger"`
	DatabaseURL string `env:"DATABASE_URL"`
}

// StorageConfig 描述生成图片转存使用的对象存储。
type StorageConfig struct {
	Bucket          string `env:"S3_BUCKET"`
	Region          string `env:"S3_REGION" envDefault:"ap-guangzhou"`
	Endpoint        string `env:"S3_ENDPOINT"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	Prefix          string `env:"S3_PREFIX"`
	PublicBaseURL   string `env:"S3_PUBLIC_BASE_URL"`
	PathStyle       bool   `env:"S3_PATH_STYLE" envDefault:"false"`
}

// S3 转换为对象存储配置。
func (c StorageConfig) S3() storage.S3Config {
	return storage.S3Config{
		Bucket:          c.Bucket,
		Region:          c.Region,
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		Prefix:          c.Prefix,
		PublicBaseURL:   c.PublicBaseURL,
		PathStyle:       c.PathStyle,
	}
}

// AgentModels 是单个智能体最终使用的密钥与模型。
type AgentModels struct {
	APIKey     string
	ChatModel  string
	ImageModel string
}

// Scene 返回 3D 场景生成智能体的配置。
func (c *Config) Scene() AgentModels {
	return AgentModels{
		APIKey:     c.Ark.APIKey,
		ChatModel:  c.Agents.VisionModel,
		ImageModel: firstNonEmpty(c.Agents.ImageModel, DefaultImageModel),
	}
}

// Museum 返回校史馆设计智能体的配置，未单独配置时沿用公共配置。
func (c *Config) Museum() AgentModels {
	return AgentModels{
		APIKey:     firstNonEmpty(c.Agents.MuseumAPIKey, c.Ark.APIKey),
		ChatModel:  firstNonEmpty(c.Agents.MuseumVisionModel, c.Agents.VisionModel),
		ImageModel: firstNonEmpty(c.Agents.MuseumImageModel, c.Agents.ImageModel, DefaultImageModel),
	}
}

// Research 返回校情调研智能体的配置。
func (c *Config) Research() AgentModels {
	return AgentModels{
		APIKey:    firstNonEmpty(c.Agents.ResearchAPIKey, c.Ark.APIKey),
		ChatModel: c.Agents.ResearchModel,
	}
}

// LoadDotEnv 加载 .env 文件，文件不存在时不视为错误。
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	switch cfg.Ark.ChatBackend {
	case ChatBackendArk, ChatBackendOpenAI:
	default:
		return nil, fmt.Errorf("invalid CHAT_BACKEND value: %q", cfg.Ark.ChatBackend)
	}

	switch cfg.Store.Backend {
	case StoreMemory, StoreBadger:
	case StorePostgres:
		if cfg.Store.DatabaseURL == "" {
			return nil, errors.New("STORE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND value: %q", cfg.Store.Backend)
	}

	return &cfg, nil
}

// normalizeAddr 解析服务器监听地址。
func normalizeAddr(port string) (string, error) {
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

// Enabled 表示是否提供了调用方舟所需的密钥。
func (c ArkConfig) Enabled(apiKey string) bool {
	return apiKey != "" || (c.AccessKey != "" && c.SecretKey != "")
}

// NewChatModel 使用给定密钥与模型创建一个方舟模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context, apiKey, modelID string) (model.ChatModel, error) {
	if !c.Enabled(apiKey) || modelID == "" {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 API Key + 模型 ID 或 AK/SK 组合")
	}

	var maxTokens *int
	if c.MaxTokens > 0 {
		val := c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    apiKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     modelID,
		MaxTokens: maxTokens,
	}

	return ark.NewChatModel(ctx, cfg)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
