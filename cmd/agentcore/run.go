package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arcweave/agentcore/pkg/actionlog"
	"github.com/arcweave/agentcore/pkg/config"
	"github.com/arcweave/agentcore/pkg/conversation"
	"github.com/arcweave/agentcore/pkg/logger"
	"github.com/arcweave/agentcore/pkg/provider"
	"github.com/arcweave/agentcore/pkg/provider/anthropic"
	"github.com/arcweave/agentcore/pkg/provider/google"
	"github.com/arcweave/agentcore/pkg/provider/openai"
	"github.com/arcweave/agentcore/pkg/store"
	"github.com/arcweave/agentcore/pkg/store/open"
	"github.com/arcweave/agentcore/pkg/tool"
	"github.com/arcweave/agentcore/pkg/tool/builtin"
	"github.com/arcweave/agentcore/pkg/turnengine"
)

// getQueryFromStdinOrArgs resolves the query text from piped stdin, the
// positional args, or both concatenated, mirroring the teacher's
// cmd/kodelet/run.go helper of the same name.
func getQueryFromStdinOrArgs(args []string) (string, error) {
	stat, _ := os.Stdin.Stat()
	isPipe := (stat.Mode() & os.ModeCharDevice) == 0

	if isPipe {
		stdinBytes, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", errors.Wrap(err, "failed to read from stdin")
		}
		stdinContent := string(stdinBytes)
		if len(args) > 0 {
			return strings.Join(args, " ") + "\n" + stdinContent, nil
		}
		return stdinContent, nil
	}

	if len(args) == 0 {
		return "", errors.New("no query provided")
	}
	return strings.Join(args, " "), nil
}

func providerFor(name string) (provider.Provider, error) {
	switch name {
	case config.ProviderAnthropic:
		return anthropic.New(), nil
	case config.ProviderOpenAI:
		return openai.New(), nil
	case config.ProviderGoogle:
		return google.New(), nil
	default:
		return nil, errors.Errorf("run: unknown provider %q", name)
	}
}

var runCmd = &cobra.Command{
	Use:   "run [query]",
	Short: "Execute a one-shot query and print the agent's turn as it streams",
	Args:  cobra.MinimumNArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Fprintln(os.Stderr, "cancellation requested, shutting down...")
			cancel()
		}()

		query, err := getQueryFromStdinOrArgs(args)
		if err != nil {
			return errors.Wrap(err, "please provide a query to run")
		}

		var cfg config.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}
		if v, err := cmd.Flags().GetBool("always-allow"); err == nil && cmd.Flags().Changed("always-allow") {
			cfg.AlwaysAllowToolActions = v
		}

		prov, err := providerFor(cfg.Provider)
		if err != nil {
			return err
		}
		if err := prov.Authenticate(ctx); err != nil {
			return errors.Wrap(err, "failed to authenticate provider")
		}
		providers := map[string]provider.Provider{cfg.Provider: prov}

		convStore, err := open.New(ctx, cfg.StoreType, cfg.StorePath)
		if err != nil {
			return errors.Wrap(err, "failed to open conversation store")
		}
		defer convStore.Close()

		resumeID, _ := cmd.Flags().GetString("resume")
		noSave, _ := cmd.Flags().GetBool("no-save")

		var conv *conversation.Conversation
		createdAt := time.Now().UTC()
		if resumeID != "" {
			sc, err := convStore.Load(resumeID)
			if err != nil {
				return errors.Wrapf(err, "failed to load conversation %s", resumeID)
			}
			sc, err = store.Migrate(sc)
			if err != nil {
				return errors.Wrap(err, "failed to migrate conversation")
			}
			conv, err = store.Deserialize(sc)
			if err != nil {
				return errors.Wrap(err, "failed to deserialize conversation")
			}
			createdAt = sc.CreatedAt
		} else {
			conv = conversation.New(conversation.NewID())
		}

		log := actionlog.New()
		registry := tool.NewRegistry()
		builtin.Register(registry, log)

		appCtx := cliAppContext{alwaysAllow: cfg.AlwaysAllowToolActions}
		engine := turnengine.New(conv, log, registry, providers, &cfg, appCtx)

		events := make(chan turnengine.TurnEvent)
		go engine.Submit(ctx, query, events)

		var turnErr error
		for ev := range events {
			switch ev.Kind {
			case "text_delta":
				fmt.Print(ev.Text)
			case "thinking_delta":
				// thinking is not printed by default in a one-shot run
			case "tool_use":
				fmt.Fprintf(os.Stderr, "\n[tool] %s\n", ev.ToolName)
			case "tool_result":
				if ev.IsError {
					fmt.Fprintf(os.Stderr, "[tool error] %s: %s\n", ev.ToolName, ev.Output)
				}
			case "state":
				if ev.State == turnengine.StateFailed {
					turnErr = ev.Err
				}
			}
		}
		fmt.Println()

		if turnErr != nil {
			return errors.Wrap(turnErr, "turn failed")
		}

		if !noSave {
			sc := store.Serialize(conv, createdAt, cfg.Model)
			if err := convStore.Save(sc); err != nil {
				return errors.Wrap(err, "failed to save conversation")
			}
			logger.G(ctx).WithField("conversation_id", sc.ID).Debug("saved conversation")
		}

		return nil
	},
}

func init() {
	runCmd.Flags().String("resume", "", "resume an existing conversation by id")
	runCmd.Flags().Bool("no-save", false, "don't persist the conversation after the turn completes")
}
