package config

// defaultModels maps each provider to the model used when none is configured.
var defaultModels = map[ProviderType]string{
	ProviderGoogle:    "gemini-2.0-flash",
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-haiku-4-5-20251001",
	ProviderOllama:    "llama3",
}

// DefaultExcludeURLs are URL glob patterns skipped at ingestion by default.
// Binary and media assets are never worth an LLM call.
var DefaultExcludeURLs = []string{
	"**/*.png",
	"**/*.jpg",
	"**/*.gif",
	"**/*.mp4",
	"**/*.zip",
	"**/login**",
	"**/signup**",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Ecosystem: "solana",
		Provider:  ProviderGoogle,
		Model:     defaultModels[ProviderGoogle],
		LLMRPM:    15,

		DataDir: ".narradar",
		Port:    8080,

		LogLevel:  "info",
		LogFormat: "text",

		WorkerConcurrency: 4,
		MaxAttempts:       3,
		MinContentChars:   50,
		MaxContentChars:   15000,
		ReclaimAfterMin:   30,

		WindowDays:     14,
		StalenessDays:  7,
		DailyDecayRate: 0.10,

		FetchDelaySeconds: 2.0,
		IncludeURLs:       []string{"**"},
		ExcludeURLs:       DefaultExcludeURLs,

		Schedules: Schedules{
			WebFetch:     "0 */3 * * *", // every 3 hours
			SocialFetch:  "0 */12 * * *",
			Extraction:   "30 * * * *", // hourly, offset from fetches
			Synthesis:    "0 8 * * *",  // daily at 08:00 UTC
			IdeaBackfill: "0 */8 * * *",
			Rescore:      "15 */6 * * *",
		},
	}
}

// DefaultModel returns the default model for the given provider.
func DefaultModel(provider ProviderType) string {
	if m, ok := defaultModels[provider]; ok {
		return m
	}
	return defaultModels[ProviderGoogle]
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderGoogle:
		return "GOOGLE_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}
