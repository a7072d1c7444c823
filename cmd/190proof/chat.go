package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/0xmmo/190proof/llm"
)

var chatCmd = &cobra.Command{
	Use:   "chat <prompt>",
	Short: "Send a single prompt",
	Long:  "Send one prompt to the model selected with --model and print the response. Function declarations can be supplied as a JSON file to exercise tool calling.",
	Args:  cobra.ExactArgs(1),
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().String("system", "", "System prompt")
	chatCmd.Flags().Float64("temperature", -1, "Sampling temperature (provider default if unset)")
	chatCmd.Flags().String("functions", "", "JSON file with function declarations")
	chatCmd.Flags().String("function-call", "", "Function call directive: auto, none, or a function name")
	chatCmd.Flags().Duration("chunk-timeout", 0, "Per-chunk timeout for streamed responses")

	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	prompt := args[0]
	model := llm.Model(viper.GetString("model"))
	system, _ := cmd.Flags().GetString("system")
	temperature, _ := cmd.Flags().GetFloat64("temperature")
	functionsFile, _ := cmd.Flags().GetString("functions")
	directive, _ := cmd.Flags().GetString("function-call")
	chunkTimeout, _ := cmd.Flags().GetDuration("chunk-timeout")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := llm.NewClient(cfg, llm.WithLogger(newLogger()))

	req := llm.GenericRequest{
		Model:        model,
		FunctionCall: llm.FunctionCallDirective(directive),
	}
	if system != "" {
		req.Messages = append(req.Messages, llm.GenericMessage{Role: llm.RoleSystem, Content: system})
	}
	req.Messages = append(req.Messages, llm.GenericMessage{Role: llm.RoleUser, Content: prompt})
	if temperature >= 0 {
		req.Temperature = &temperature
	}

	if functionsFile != "" {
		data, err := os.ReadFile(functionsFile)
		if err != nil {
			return fmt.Errorf("reading functions file: %w", err)
		}
		if err := json.Unmarshal(data, &req.Functions); err != nil {
			return fmt.Errorf("parsing functions file: %w", err)
		}
	}

	var opts []llm.CallOption
	if chunkTimeout > 0 {
		opts = append(opts, llm.WithChunkTimeout(chunkTimeout))
	}

	start := time.Now()
	resp, err := client.CallWithRetries(cmd.Context(), "", req, opts...)
	if err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "[chat] %s responded in %.1fs\n", model, time.Since(start).Seconds())
	}

	if resp.FunctionCall != nil {
		args, err := json.MarshalIndent(resp.FunctionCall.Arguments, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("%s(%s)\n", resp.FunctionCall.Name, args)
	}
	if text := resp.Text(); text != "" {
		fmt.Println(text)
	}
	return nil
}
