package config

// ProviderType identifies an LLM provider.
type ProviderType string

const (
	ProviderGoogle    ProviderType = "google"
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOllama    ProviderType = "ollama"
)

// Schedules holds the cron expressions (UTC) for each background job class.
type Schedules struct {
	WebFetch     string `yaml:"web_fetch" koanf:"web_fetch"`
	SocialFetch  string `yaml:"social_fetch" koanf:"social_fetch"`
	Extraction   string `yaml:"extraction" koanf:"extraction"`
	Synthesis    string `yaml:"synthesis" koanf:"synthesis"`
	IdeaBackfill string `yaml:"idea_backfill" koanf:"idea_backfill"`
	Rescore      string `yaml:"rescore" koanf:"rescore"`
}

// Config is the top-level narradar configuration, corresponding to .narradar.yml.
type Config struct {
	Ecosystem string       `yaml:"ecosystem" koanf:"ecosystem"`
	Provider  ProviderType `yaml:"provider" koanf:"provider"`
	Model     string       `yaml:"model" koanf:"model"`
	LLMRPM    int          `yaml:"llm_rpm" koanf:"llm_rpm"`

	DataDir string `yaml:"data_dir" koanf:"data_dir"`
	Port    int    `yaml:"port" koanf:"port"`

	LogLevel  string `yaml:"log_level" koanf:"log_level"`
	LogFormat string `yaml:"log_format" koanf:"log_format"`

	// Extraction pipeline tuning.
	WorkerConcurrency int `yaml:"worker_concurrency" koanf:"worker_concurrency"`
	MaxAttempts       int `yaml:"max_attempts" koanf:"max_attempts"`
	MinContentChars   int `yaml:"min_content_chars" koanf:"min_content_chars"`
	MaxContentChars   int `yaml:"max_content_chars" koanf:"max_content_chars"`
	ReclaimAfterMin   int `yaml:"reclaim_after_minutes" koanf:"reclaim_after_minutes"`

	// Narrative lifecycle.
	WindowDays     int     `yaml:"window_days" koanf:"window_days"`
	StalenessDays  int     `yaml:"staleness_days" koanf:"staleness_days"`
	DailyDecayRate float64 `yaml:"daily_decay_rate" koanf:"daily_decay_rate"`

	// Fetching politeness and URL filtering.
	FetchDelaySeconds float64  `yaml:"fetch_delay_seconds" koanf:"fetch_delay_seconds"`
	IncludeURLs       []string `yaml:"include_urls" koanf:"include_urls"`
	ExcludeURLs       []string `yaml:"exclude_urls" koanf:"exclude_urls"`

	Schedules Schedules `yaml:"schedules" koanf:"schedules"`
}
