// Package main provides the entry point for the agentcore CLI, a
// one-shot and history-browsing driver over the orchestration core.
package main

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arcweave/agentcore/pkg/config"
	"github.com/arcweave/agentcore/pkg/logger"
)

func init() {
	config.SetDefaults(viper.GetViper())
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "fmt")
	viper.SetDefault("store_path", defaultStorePath())

	viper.SetEnvPrefix("AGENTCORE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.agentcore")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err == nil {
		logger.G(context.TODO()).WithField("config_file", viper.ConfigFileUsed()).Debug("using config file")
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentcore"
	}
	return home + "/.agentcore"
}

var rootCmd = &cobra.Command{
	Use:   "agentcore",
	Short: "agentcore drives LLM-backed coding turns from the command line",
	Long:  `agentcore submits one-shot queries to an LLM provider, streaming tool use and edits, and browses prior conversation history.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) > 0 {
			runCmd.Run(cmd, args)
			return
		}
		cmd.Help()
		os.Exit(1)
	},
}

func main() {
	ctx := context.Background()

	cobra.OnInitialize(func() {
		if level := viper.GetString("log_level"); level != "" {
			if err := logger.SetLogLevel(level); err != nil {
				logger.G(context.TODO()).WithError(err).WithField("log_level", level).Warn("invalid log level, using default")
			}
		}
		if format := viper.GetString("log_format"); format != "" {
			logger.SetLogFormat(format)
		}
	})

	rootCmd.PersistentFlags().String("provider", config.ProviderAnthropic, "LLM provider to use (anthropic, openai, google)")
	rootCmd.PersistentFlags().String("model", "claude-sonnet-4-5", "model to use (overrides config)")
	rootCmd.PersistentFlags().Int("max-tokens", 8192, "maximum tokens for response")
	rootCmd.PersistentFlags().Bool("always-allow", false, "skip tool confirmation and run every tool call immediately")
	rootCmd.PersistentFlags().String("store-type", "sqlite", "conversation store backend (sqlite, bbolt)")
	rootCmd.PersistentFlags().String("store-path", viper.GetString("store_path"), "directory holding the conversation store")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (panic, fatal, error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().String("log-format", "fmt", "log format (json, text, fmt)")

	viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))
	viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
	viper.BindPFlag("max_tokens", rootCmd.PersistentFlags().Lookup("max-tokens"))
	viper.BindPFlag("always_allow_tool_actions", rootCmd.PersistentFlags().Lookup("always-allow"))
	viper.BindPFlag("store_type", rootCmd.PersistentFlags().Lookup("store-type"))
	viper.BindPFlag("store_path", rootCmd.PersistentFlags().Lookup("store-path"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.SetContext(ctx)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.G(context.TODO()).WithError(err).Error("failed to execute command")
		os.Exit(1)
	}
}
