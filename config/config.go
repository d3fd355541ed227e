package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	// ESPN数据源配置
	ESPNBaseURL     string
	Competition     string
	ESPNTimeout     time.Duration
	ESPNCacheTTL    time.Duration
	ESPNMaxAttempts int

	// Discord配置
	DiscordToken   string
	DiscordBaseURL string
	DiscordTimeout time.Duration

	// AI解说配置
	OpenAIKey          string
	OpenAIModel        string
	OpenAIBaseURL      string
	OpenAITimeout      time.Duration
	EnableAICommentary bool
	PromptAPIBaseURL   string

	// 主队配置
	TeamID     string
	TeamName   string
	RivalNames []string

	// 数据库配置
	DatabaseURL string

	// 服务器配置
	Port string

	// AMQP事件分发配置（可选）
	AMQPURL      string
	AMQPExchange string

	// 监控循环配置
	PollInterval     time.Duration
	PostPause        time.Duration
	MaxErrorCount    int
	SessionRetention time.Duration
	CleanupInterval  time.Duration

	// 熔断器配置
	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerRecoveryTimeout  time.Duration

	// 其他配置
	Environment string
}

func Load() *Config {
	return &Config{
		// ESPN数据源配置
		ESPNBaseURL:     getEnv("ESPN_API_BASE_URL", "https://site.api.espn.com/apis/site/v2"),
		Competition:     getEnv("COMPETITION", "usa.1"),
		ESPNTimeout:     getEnvDuration("ESPN_TIMEOUT", 15*time.Second),
		ESPNCacheTTL:    getEnvDuration("ESPN_CACHE_TTL", 20*time.Second),
		ESPNMaxAttempts: getEnvInt("ESPN_MAX_ATTEMPTS", 3),

		// Discord配置
		DiscordToken:   getEnv("DISCORD_TOKEN", ""),
		DiscordBaseURL: getEnv("DISCORD_API_BASE_URL", "https://discord.com/api/v10"),
		DiscordTimeout: getEnvDuration("DISCORD_TIMEOUT", 15*time.Second),

		// AI解说配置
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:      getEnv("OPENAI_API_BASE_URL", "https://api.openai.com/v1"),
		OpenAITimeout:      getEnvDuration("OPENAI_TIMEOUT", 5*time.Second),
		EnableAICommentary: getEnv("ENABLE_AI_COMMENTARY", "true") == "true",
		PromptAPIBaseURL:   getEnv("PROMPT_API_BASE_URL", ""),

		// 主队配置
		TeamID:     getEnv("TEAM_ID", "9726"),
		TeamName:   getEnv("TEAM_NAME", "Seattle Sounders FC"),
		RivalNames: getRivalNames(),

		// 数据库配置
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/livereport?sslmode=disable"),

		// 服务器配置
		Port: getEnv("PORT", "8080"),

		// AMQP事件分发配置
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "livereport.updates"),

		// 监控循环配置
		PollInterval:     getEnvDuration("POLL_INTERVAL", 30*time.Second),
		PostPause:        getEnvDuration("POST_PAUSE", 500*time.Millisecond),
		MaxErrorCount:    getEnvInt("MAX_ERROR_COUNT", 5),
		SessionRetention: getEnvDuration("SESSION_RETENTION", 24*time.Hour),
		CleanupInterval:  getEnvDuration("CLEANUP_INTERVAL", time.Hour),

		// 熔断器配置
		BreakerFailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerSuccessThreshold: getEnvInt("BREAKER_SUCCESS_THRESHOLD", 3),
		BreakerRecoveryTimeout:  getEnvDuration("BREAKER_RECOVERY_TIMEOUT", 60*time.Second),

		// 其他配置
		Environment: getEnv("ENVIRONMENT", "development"),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result int
	fmt.Sscanf(value, "%d", &result)
	if result == 0 {
		return defaultValue
	}
	return result
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getRivalNames() []string {
	names := getEnv("RIVAL_NAMES", "Portland Timbers,Vancouver Whitecaps")
	parts := strings.Split(names, ",")
	rivals := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			rivals = append(rivals, p)
		}
	}
	return rivals
}
