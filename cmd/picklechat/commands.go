package main

import (
	"fmt"
	"os"

	"PickleChat/internal/chatbot"
	"PickleChat/internal/console"
	"PickleChat/internal/conversation"

	"github.com/spf13/cobra"
)

// withStore opens the store for commands that never contact the completion service
func withStore(fn func(store *conversation.Store) error) error {
	store, closeStore, err := chatbot.OpenStore(cfg, nil)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(store)
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *conversation.Store) error {
				console.PrintList(cmd.OutOrStdout(), store.List())
				return nil
			})
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *conversation.Store) error {
				c, err := store.Get(args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "== %s (%s) ==\n", c.Title, c.ID)
				for _, m := range c.Messages {
					fmt.Fprintf(out, "%s: %s\n", console.Sender(m.Role), m.Content)
				}
				return nil
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *conversation.Store) error {
				if err := store.Delete(args[0]); err != nil {
					return fmt.Errorf("failed to delete conversation: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func deleteAllCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				fmt.Fprintln(os.Stderr, "Refusing to delete all conversations without --yes")
				return fmt.Errorf("confirmation required")
			}
			return withStore(func(store *conversation.Store) error {
				if err := store.DeleteAll(); err != nil {
					return fmt.Errorf("failed to delete conversations: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All conversations deleted")
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")
	return cmd
}
