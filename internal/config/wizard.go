package config

import (
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to the given path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to narradar! Let's configure your radar.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Ecosystem under observation.
	ecoPrompt := promptui.Prompt{
		Label:   "Ecosystem to track (used in prompts, e.g. solana, ethereum)",
		Default: cfg.Ecosystem,
	}
	eco, err := ecoPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("ecosystem input: %w", err)
	}
	cfg.Ecosystem = eco

	// 2. Provider selection.
	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"google", "openai", "anthropic", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.Provider = ProviderType(providerStr)
	cfg.Model = DefaultModel(cfg.Provider)

	// 3. Synthesis window.
	windowPrompt := promptui.Prompt{
		Label:   "Synthesis window in days (signals older than this are ignored)",
		Default: strconv.Itoa(cfg.WindowDays),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				return fmt.Errorf("must be a positive integer")
			}
			return nil
		},
	}
	windowStr, err := windowPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("window input: %w", err)
	}
	cfg.WindowDays, _ = strconv.Atoi(windowStr)

	// 4. Worker concurrency.
	concPrompt := promptui.Prompt{
		Label:   "Extraction worker concurrency",
		Default: strconv.Itoa(cfg.WorkerConcurrency),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				return fmt.Errorf("must be a positive integer")
			}
			return nil
		},
	}
	concStr, err := concPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("concurrency input: %w", err)
	}
	cfg.WorkerConcurrency, _ = strconv.Atoi(concStr)

	if envVar := APIKeyEnvVar(cfg.Provider); envVar != "" {
		fmt.Printf("\nRemember to export %s before running the pipeline.\n", envVar)
	}

	if err := cfg.Save(path); err != nil {
		return nil, err
	}
	fmt.Printf("Configuration written to %s\n", path)

	return cfg, nil
}
