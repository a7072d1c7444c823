package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0xmmo/190proof/llm"
)

var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List known models",
	Long:  "List the models the client can route, optionally filtered to one provider (openai, anthropic, groq, google).",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	providers := []llm.Provider{
		llm.ProviderOpenAI,
		llm.ProviderAnthropic,
		llm.ProviderGroq,
		llm.ProviderGoogle,
	}
	if len(args) == 1 {
		providers = []llm.Provider{llm.Provider(args[0])}
	}

	for _, p := range providers {
		models := llm.ListModels(p)
		if len(models) == 0 {
			return fmt.Errorf("unknown provider %q", p)
		}
		fmt.Printf("%s:\n", p)
		for _, m := range models {
			fmt.Printf("  %s\n", m)
		}
	}
	return nil
}
