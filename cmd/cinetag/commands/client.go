package commands

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/jmylchreest/cinetag/internal/logger"
	"github.com/jmylchreest/cinetag/internal/version"
	"github.com/jmylchreest/cinetag/pkg/extractor"
	"github.com/jmylchreest/cinetag/pkg/llm"
	"github.com/jmylchreest/cinetag/pkg/parse"
)

// settings is the resolved model and extraction configuration.
type settings struct {
	Provider          string
	Model             string
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	Temperature       float64
	MaxTokens         int
	MaxRepairAttempts int
	LenientJSON       bool
}

// loadSettings reads flags, config file and environment through viper and
// fills in the provider, model and API key when they were not given.
func loadSettings() (settings, error) {
	s := settings{
		Provider:          viper.GetString("provider"),
		Model:             viper.GetString("model"),
		APIKey:            viper.GetString("api_key"),
		BaseURL:           viper.GetString("base_url"),
		Timeout:           viper.GetDuration("timeout"),
		Temperature:       viper.GetFloat64("temperature"),
		MaxTokens:         viper.GetInt("max_tokens"),
		MaxRepairAttempts: viper.GetInt("max_repair_attempts"),
		LenientJSON:       viper.GetBool("lenient_json"),
	}

	switch {
	case s.Provider == "":
		s.Provider, s.APIKey = llm.DetectProvider()
		if key := viper.GetString("api_key"); key != "" {
			s.APIKey = key
		}
		logger.Debug("auto-detected provider", "provider", s.Provider)
	case !llm.IsRegistered(s.Provider):
		return s, fmt.Errorf("unknown provider: %s (available: %v)", s.Provider, llm.AvailableProviders())
	case s.APIKey == "":
		s.APIKey = llm.APIKeyFromEnv(s.Provider)
	}

	if s.Model == "" {
		s.Model = llm.GetDefaultModel(s.Provider)
	}
	if s.MaxRepairAttempts < 0 {
		s.MaxRepairAttempts = 0
	}
	if s.MaxTokens <= 0 {
		return s, fmt.Errorf("max-tokens must be positive, got %d", s.MaxTokens)
	}

	return s, nil
}

// config returns the extraction policy for s.
func (s settings) config() extractor.Config {
	return extractor.Config{
		Model:             s.Model,
		Temperature:       s.Temperature,
		MaxRepairAttempts: extractor.RepairAttempts(s.MaxRepairAttempts),
	}
}

// newClient creates the model client for s.
func newClient(s settings) (*llm.Client, error) {
	provider, err := llm.NewProvider(s.Provider, llm.ProviderConfig{
		APIKey:   s.APIKey,
		BaseURL:  s.BaseURL,
		Model:    s.Model,
		Timeout:  s.Timeout,
		AppTitle: version.AppTitle(),
	})
	if err != nil {
		if env := llm.APIKeyEnv(s.Provider); env != "" && s.APIKey == "" {
			return nil, fmt.Errorf("%w: set %s or pass --api-key", err, env)
		}
		return nil, err
	}

	return llm.NewClient(provider,
		llm.WithTemperature(s.Temperature),
		llm.WithMaxTokens(s.MaxTokens)), nil
}

// newExtractor creates an extractor wired to the configured model.
func newExtractor(s settings, opts ...extractor.Option) (*extractor.Extractor, error) {
	client, err := newClient(s)
	if err != nil {
		return nil, err
	}

	if s.LenientJSON {
		opts = append(opts, extractor.WithParser(parse.New(parse.WithRepair(true))))
	}

	logger.Debug("extractor ready",
		"provider", client.Name(),
		"model", client.Model(),
		"temperature", s.Temperature,
		"max_repair_attempts", s.MaxRepairAttempts,
		"lenient_json", s.LenientJSON)

	return extractor.New(client, s.config(), opts...), nil
}
