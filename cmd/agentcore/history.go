package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arcweave/agentcore/pkg/config"
	"github.com/arcweave/agentcore/pkg/historystore"
	"github.com/arcweave/agentcore/pkg/store/open"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List and manage conversation history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var cfg config.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}

		convStore, err := open.New(ctx, cfg.StoreType, cfg.StorePath)
		if err != nil {
			return errors.Wrap(err, "failed to open conversation store")
		}
		defer convStore.Close()

		queueStore, err := historystore.NewBoltQueueStore(filepath.Join(cfg.StorePath, "recent.db"))
		if err != nil {
			return errors.Wrap(err, "failed to open recently-opened queue store")
		}

		hs := historystore.New(convStore, nil, queueStore)
		if err := hs.Load(ctx); err != nil {
			return errors.Wrap(err, "failed to load history")
		}

		for _, e := range hs.Entries() {
			fmt.Printf("%s\t%s\t%s\n", e.ID.ConversationID, e.UpdatedAt.Format("2006-01-02 15:04"), e.DisplayTitle())
		}
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete [conversation-id]",
	Short: "Delete a conversation and drop it from the recently-opened queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		var cfg config.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}

		convStore, err := open.New(ctx, cfg.StoreType, cfg.StorePath)
		if err != nil {
			return errors.Wrap(err, "failed to open conversation store")
		}
		defer convStore.Close()

		queueStore, err := historystore.NewBoltQueueStore(filepath.Join(cfg.StorePath, "recent.db"))
		if err != nil {
			return errors.Wrap(err, "failed to open recently-opened queue store")
		}

		hs := historystore.New(convStore, nil, queueStore)
		if err := hs.Load(ctx); err != nil {
			return errors.Wrap(err, "failed to load history")
		}
		return hs.DeleteThread(ctx, args[0])
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}
