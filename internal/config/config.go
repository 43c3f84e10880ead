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

// Environment selects which set of backend URLs is used.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config 聚合客户端与本地开发后端的配置项。
type Config struct {
	Env     Environment
	Backend BackendConfig
	Chat    ChatConfig
	Audio   AudioConfig
	Server  ServerConfig
	AI      AIConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	env, err := loadEnvironment()
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig(env)
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Env:     env,
		Backend: backend,
		Chat:    chat,
		Audio:   loadAudioConfig(),
		Server:  server,
		AI:      ai,
	}, nil
}

func loadEnvironment() (Environment, error) {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	switch raw {
	case "", "dev", "development":
		return EnvDevelopment, nil
	case "staging":
		return EnvStaging, nil
	case "prod", "production":
		return EnvProduction, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV value: %q", raw)
	}
}

// BackendConfig 描述两个远端服务的地址与超时。
type BackendConfig struct {
	BaseURL              string
	AIBaseURL            string
	Timeout              time.Duration
	PronunciationTimeout time.Duration
}

func loadBackendConfig(env Environment) (BackendConfig, error) {
	baseURL := envForEnvironment("BACKEND_URL", env)
	aiURL := envForEnvironment("AI_BACKEND_URL", env)

	if env == EnvDevelopment {
		// 开发环境默认指向 cmd/devbackend。
		if baseURL == "" {
			baseURL = "http://localhost:8080"
		}
		if aiURL == "" {
			aiURL = baseURL + "/ai"
		}
	}

	if baseURL == "" {
		return BackendConfig{}, fmt.Errorf("BACKEND_URL is required for %s", env)
	}
	if aiURL == "" {
		return BackendConfig{}, fmt.Errorf("AI_BACKEND_URL is required for %s", env)
	}

	timeout, err := parseDurationEnv("HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return BackendConfig{}, err
	}

	pronunciation, err := parseDurationEnv("PRONUNCIATION_TIMEOUT", 30*time.Second)
	if err != nil {
		return BackendConfig{}, err
	}

	return BackendConfig{
		BaseURL:              strings.TrimRight(baseURL, "/"),
		AIBaseURL:            strings.TrimRight(aiURL, "/"),
		Timeout:              timeout,
		PronunciationTimeout: pronunciation,
	}, nil
}

// ChatConfig 描述会话行为参数。
type ChatConfig struct {
	TokenBudget      int
	TokenEstimator   string
	PlaybackAttempts int
	PopupTTL         time.Duration
}

func loadChatConfig() (ChatConfig, error) {
	budget := 4000
	if override, err := parseOptionalIntEnv("TOKEN_BUDGET"); err != nil {
		return ChatConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return ChatConfig{}, fmt.Errorf("invalid TOKEN_BUDGET value: %d", *override)
		}
		budget = *override
	}

	attempts := 3
	if override, err := parseOptionalIntEnv("PLAYBACK_ATTEMPTS"); err != nil {
		return ChatConfig{}, err
	} else if override != nil {
		if *override < 1 {
			attempts = 1
		} else {
			attempts = *override
		}
	}

	popupTTL, err := parseDurationEnv("POPUP_TTL", 3*time.Second)
	if err != nil {
		return ChatConfig{}, err
	}

	estimator := strings.ToLower(getEnvOrDefault("TOKEN_ESTIMATOR", "words"))
	if estimator != "words" && estimator != "tiktoken" {
		return ChatConfig{}, fmt.Errorf("invalid TOKEN_ESTIMATOR value: %q", estimator)
	}

	return ChatConfig{
		TokenBudget:      budget,
		TokenEstimator:   estimator,
		PlaybackAttempts: attempts,
		PopupTTL:         popupTTL,
	}, nil
}

// AudioConfig 描述本地录音与播放命令。
type AudioConfig struct {
	FFmpegCommand string
	FFplayCommand string
	InputFormat   string
	InputDevice   string
	RecordingDir  string
}

func loadAudioConfig() AudioConfig {
	return AudioConfig{
		FFmpegCommand: getEnvOrDefault("FFMPEG_COMMAND", "ffmpeg"),
		FFplayCommand: getEnvOrDefault("FFPLAY_COMMAND", "ffplay"),
		InputFormat:   getEnvOrDefault("AUDIO_INPUT_FORMAT", "pulse"),
		InputDevice:   getEnvOrDefault("AUDIO_INPUT_DEVICE", "default"),
		RecordingDir:  getEnvOrDefault("RECORDING_DIR", os.TempDir()),
	}
}

// ServerConfig 描述开发后端的监听地址。
type ServerConfig struct {
	Addr string
	// DevTranscript 是 /whisper/ 桩接口默认返回的识别文本。
	DevTranscript string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	transcript := getEnvOrDefault("DEV_TRANSCRIPT", "Hello, how are you today?")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, DevTranscript: transcript}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, DevTranscript: transcript}, nil
}

// AIConfig 描述开发后端使用的大模型配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
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

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

// envForEnvironment prefers KEY_<ENV> (e.g. BACKEND_URL_STAGING) over KEY.
func envForEnvironment(key string, env Environment) string {
	scoped := key + "_" + strings.ToUpper(string(env))
	if value := strings.TrimSpace(os.Getenv(scoped)); value != "" {
		return value
	}
	return strings.TrimSpace(os.Getenv(key))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	// 纯数字按秒处理，兼容旧的 SPEECH_TIMEOUT 写法。
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
		}
		return time.Duration(seconds) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
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
