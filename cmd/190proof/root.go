package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "190proof",
	Short: "Unified LLM client",
	Long:  "190proof sends chat and function-calling requests to OpenAI, Azure OpenAI, Anthropic, Bedrock, Groq and Google through one interface with built-in retry remediation.",
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("model", "m", "gpt-4o", "Model to use (provider is resolved from the model)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Provider config file (YAML)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	_ = viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	viper.SetEnvPrefix("PROOF")
	viper.AutomaticEnv()
}
