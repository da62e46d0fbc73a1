package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"go.horsed.dev/horsed/internal/appconfig"
	"go.horsed.dev/horsed/internal/keystore"
	"go.horsed.dev/horsed/schema"
	"pkt.systems/pslog"
)

func newUsersCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage horsed users and their authorized keys",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	cmd.AddCommand(newUsersListCmd(&cfgPath))
	cmd.AddCommand(newUsersAddCmd(&cfgPath))
	cmd.AddCommand(newUsersDeleteCmd(&cfgPath))
	cmd.AddCommand(newUsersAddKeyCmd(&cfgPath))
	cmd.AddCommand(newUsersRemoveKeyCmd(&cfgPath))

	return cmd
}

func openKeyStore(cfgPath string, logger pslog.Logger) (*keystore.Store, error) {
	cfg, err := appconfig.Load(cfgPath, nil)
	if err != nil {
		return nil, err
	}
	return keystore.New(cfg.Auth.KeyStorePath, cfg.Auth.SeedUsers, logger)
}

func newUsersListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openKeyStore(*cfgPath, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, user := range store.ListUsers() {
				_, _ = fmt.Fprintf(out, "%s\t%s\n", user.ID, user.Name)
			}
			return nil
		},
	}
}

func newUsersAddCmd(cfgPath *string) *cobra.Command {
	var name, email, authorizedKey string
	cmd := &cobra.Command{
		Use:   "add <user-id>",
		Short: "Add a user with an initial authorized key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := schema.UserID(args[0])
			if err := schema.ValidateUserID(userID); err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			if strings.TrimSpace(authorizedKey) == "" {
				return errors.New("--key is required: horsed authenticates by public key only")
			}
			store, err := openKeyStore(*cfgPath, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			user := keystore.User{ID: userID, Name: name, Email: email}
			if err := store.AddUser(user, []string{authorizedKey}); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "added user: %s\n", userID)
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	cmd.Flags().StringVar(&authorizedKey, "key", "", "initial authorized_keys line")
	return cmd
}

func newUsersDeleteCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete a user and all of its authorized keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openKeyStore(*cfgPath, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			if err := store.DeleteUser(schema.UserID(args[0])); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted user: %s\n", args[0])
			return err
		},
	}
}

func newUsersAddKeyCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add-key <user-id> <authorized-key-line>",
		Short: "Add an authorized key to an existing user",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := schema.UserID(args[0])
			key := strings.TrimSpace(strings.Join(args[1:], " "))
			store, err := openKeyStore(*cfgPath, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			if err := store.AddAuthorizedKey(userID, key); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "added key for user: %s\n", userID)
			return err
		},
	}
}

func newUsersRemoveKeyCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-key <user-id> <index>",
		Short: "Remove a user's authorized key by its 1-based index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil || index <= 0 {
				return errors.New("invalid key index")
			}
			store, err := openKeyStore(*cfgPath, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			if err := store.RemoveAuthorizedKey(schema.UserID(args[0]), index); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed key %d for user: %s\n", index, args[0])
			return err
		},
	}
}
