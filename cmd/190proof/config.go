package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/0xmmo/190proof/llm"
)

// fileConfig is the YAML shape of the provider config file. Every field
// is optional; environment variables fill in missing API keys.
type fileConfig struct {
	OpenAI struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Azure   *struct {
			Endpoint    string            `yaml:"endpoint"`
			APIKey      string            `yaml:"api_key"`
			APIVersion  string            `yaml:"api_version"`
			Deployments map[string]string `yaml:"deployments"`
		} `yaml:"azure"`
	} `yaml:"openai"`
	Anthropic struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Bedrock *struct {
			Region          string `yaml:"region"`
			AccessKeyID     string `yaml:"access_key_id"`
			SecretAccessKey string `yaml:"secret_access_key"`
			SessionToken    string `yaml:"session_token"`
		} `yaml:"bedrock"`
	} `yaml:"anthropic"`
	Groq struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"groq"`
	Google struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"google"`
}

// loadConfig assembles the client config from the optional YAML file and
// environment variables. Environment keys win over file values so
// secrets can stay out of checked-in config.
func loadConfig() (llm.Config, error) {
	var fc fileConfig
	if path := viper.GetString("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return llm.Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return llm.Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg := llm.Config{
		OpenAI: llm.OpenAIConfig{
			APIKey:  firstNonEmpty(viper.GetString("openai_api_key"), fc.OpenAI.APIKey),
			BaseURL: fc.OpenAI.BaseURL,
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:  firstNonEmpty(viper.GetString("anthropic_api_key"), fc.Anthropic.APIKey),
			BaseURL: fc.Anthropic.BaseURL,
		},
		Groq: llm.GroqConfig{
			APIKey:  firstNonEmpty(viper.GetString("groq_api_key"), fc.Groq.APIKey),
			BaseURL: fc.Groq.BaseURL,
		},
		Google: llm.GoogleConfig{
			APIKey:  firstNonEmpty(viper.GetString("google_api_key"), fc.Google.APIKey),
			BaseURL: fc.Google.BaseURL,
		},
	}

	if az := fc.OpenAI.Azure; az != nil {
		cfg.OpenAI.Azure = &llm.AzureConfig{
			Endpoint:    az.Endpoint,
			APIKey:      firstNonEmpty(viper.GetString("azure_api_key"), az.APIKey),
			APIVersion:  az.APIVersion,
			Deployments: az.Deployments,
		}
	}
	if br := fc.Anthropic.Bedrock; br != nil {
		cfg.Anthropic.Bedrock = &llm.BedrockConfig{
			Region:          br.Region,
			AccessKeyID:     firstNonEmpty(viper.GetString("aws_access_key_id"), br.AccessKeyID),
			SecretAccessKey: firstNonEmpty(viper.GetString("aws_secret_access_key"), br.SecretAccessKey),
			SessionToken:    firstNonEmpty(viper.GetString("aws_session_token"), br.SessionToken),
		}
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// newLogger builds the process logger. Verbose mode lowers the level to
// debug; otherwise only warnings from the retry machinery surface.
func newLogger() *slog.Logger {
	var out io.Writer = os.Stderr
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}
