package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// DefaultTranscript is what the development assistant answers on /transcribe
// when DEV_TRANSCRIPT is not set.
const DefaultTranscript = "This is a simulated voice transcription. In a real implementation, this would be the actual transcribed text from your speech."

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Assistant AssistantConfig
	Capture   CaptureConfig
	AI        AIConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig("PORT", "8080")
	if err != nil {
		return nil, err
	}

	assistant, err := loadAssistantConfig()
	if err != nil {
		return nil, err
	}

	capture, err := loadCaptureConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Assistant: assistant, Capture: capture, AI: ai}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(key, defaultPort string) (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv(key))
	if port == "" {
		port = defaultPort
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid %s value: %q", key, port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AssistantConfig 描述远端助手服务的地址与凭证。
// URL 与 APIKey 缺失时不在启动时报错，由客户端在调用时返回 ErrNotConfigured。
type AssistantConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// TranscribeURL returns the transcription endpoint derived from URL.
func (c AssistantConfig) TranscribeURL() string {
	if c.URL == "" {
		return ""
	}
	return strings.TrimRight(c.URL, "/") + "/transcribe"
}

// CaptureConfig 描述录音子系统配置。
type CaptureConfig struct {
	// Source 为预录音频文件路径；为空时录音功能不可用。
	Source         string
	SampleInterval time.Duration
	ChunkBytes     int
	ChunkInterval  time.Duration
}

// AIConfig 描述开发用助手所使用的大模型配置。
type AIConfig struct {
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	SystemPrompt string
	HistoryLimit int
	Transcript   string
	Server       ServerConfig
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAssistantConfig() (AssistantConfig, error) {
	timeout, err := parseOptionalIntEnv("VERA_API_TIMEOUT")
	if err != nil {
		return AssistantConfig{}, err
	}
	timeoutSeconds := 60
	if timeout != nil && *timeout > 0 {
		timeoutSeconds = *timeout
	}

	return AssistantConfig{
		URL:     strings.TrimSpace(os.Getenv("VERA_API_URL")),
		APIKey:  strings.TrimSpace(os.Getenv("VERA_API_KEY")),
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

func loadCaptureConfig() (CaptureConfig, error) {
	sampleMS, err := parseOptionalIntEnv("VERA_CAPTURE_SAMPLE_MS")
	if err != nil {
		return CaptureConfig{}, err
	}
	sample := 16 * time.Millisecond // 约等于一帧
	if sampleMS != nil && *sampleMS > 0 {
		sample = time.Duration(*sampleMS) * time.Millisecond
	}

	chunkBytes, err := parseOptionalIntEnv("VERA_CAPTURE_CHUNK_BYTES")
	if err != nil {
		return CaptureConfig{}, err
	}
	chunk := 4096
	if chunkBytes != nil && *chunkBytes > 0 {
		chunk = *chunkBytes
	}

	chunkMS, err := parseOptionalIntEnv("VERA_CAPTURE_CHUNK_MS")
	if err != nil {
		return CaptureConfig{}, err
	}
	chunkInterval := 100 * time.Millisecond
	if chunkMS != nil && *chunkMS > 0 {
		chunkInterval = time.Duration(*chunkMS) * time.Millisecond
	}

	return CaptureConfig{
		Source:         strings.TrimSpace(os.Getenv("VERA_CAPTURE_SOURCE")),
		SampleInterval: sample,
		ChunkBytes:     chunk,
		ChunkInterval:  chunkInterval,
	}, nil
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit := 10
	if override, err := parseOptionalIntEnv("DEV_ASSISTANT_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			historyLimit = 1
		} else {
			historyLimit = *override
		}
	}

	server, err := loadServerConfig("DEV_ASSISTANT_PORT", "8090")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        strings.TrimSpace(os.Getenv("Model")),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		SystemPrompt: getEnvOrDefault("DEV_ASSISTANT_PROMPT", "You are VERA, a concise and helpful assistant."),
		HistoryLimit: historyLimit,
		Transcript:   getEnvOrDefault("DEV_TRANSCRIPT", DefaultTranscript),
		Server:       server,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
