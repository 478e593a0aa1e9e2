package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xonecas/parley/internal/chat"
	"github.com/xonecas/parley/internal/devserver"
	"github.com/xonecas/parley/internal/store"
)

func newChatsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Manage conversations in the server database",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List conversations, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withUser(opts, func(st *store.Store, user *chat.User) error {
					convs, err := st.ListConversations(user.ID)
					if err != nil {
						return err
					}
					out := cmd.OutOrStdout()
					if len(convs) == 0 {
						fmt.Fprintln(out, "no conversations")
						return nil
					}
					for _, c := range convs {
						fmt.Fprintf(out, "%-6s %s\n", c.ID, c.Name)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "create NAME...",
			Short: "Create a conversation",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withUser(opts, func(st *store.Store, user *chat.User) error {
					conv, err := st.CreateConversation(user.ID, strings.Join(args, " "))
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), conv.ID)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete a conversation and its messages",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withUser(opts, func(st *store.Store, user *chat.User) error {
					return st.DeleteConversation(chat.ID(args[0]))
				})
			},
		},
	)
	return cmd
}

// withUser opens the configured database and resolves the local user the
// server answers as.
func withUser(opts *rootOptions, fn func(*store.Store, *chat.User) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	st, err := openStore(cfg.Server.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := st.EnsureUser(devserver.DefaultUserEmail, chat.RoleUser)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return fn(st, user)
}
