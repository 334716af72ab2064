package model

// ================ Config ================
type CompletionModelConfig struct {
	Model       string  `envconfig:"COMPLETION_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"COMPLETION_MAX_TOKENS" default:"1024"`
	Temperature float32 `envconfig:"COMPLETION_TEMPERATURE" default:"0.3"`
	// ThinkingBudget of 0 disables model thinking.
	ThinkingBudget int32 `envconfig:"COMPLETION_THINKING_BUDGET" default:"0"`
}

type RoutingConfig struct {
	// DefaultCategories apply when no similar past issue suggests categories.
	DefaultCategories []string `envconfig:"ROUTING_DEFAULT_CATEGORIES" default:"billing,technical"`
}

type StoreConfig struct {
	Backend  string `envconfig:"STORE_BACKEND" default:"file"`
	FilePath string `envconfig:"STORE_FILE_PATH" default:"data/agent_memory.json"`
	RedisKey string `envconfig:"STORE_REDIS_KEY" default:"support:memory"`
}

type ServerConfig struct {
	Addr            string `envconfig:"SERVER_ADDR" default:":8000"`
	ShutdownTimeout string `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
	RequestTimeout  string `envconfig:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}
