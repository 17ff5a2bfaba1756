package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/rowguard/pkg/auth"
)

var (
	userName string
	userRole string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create EMAIL",
	Short: "Create a user",
	Args:  cobra.ExactArgs(1),
	RunE: dbCommand(func(ctx context.Context, e *env, db *sql.DB, args []string) error {
		policy, err := e.loadPolicy()
		if err != nil {
			return err
		}
		user, err := auth.NewUserStore(db, policy.Registry()).Create(ctx, auth.NewUser{
			Email: args[0],
			Name:  userName,
			Role:  userRole,
		})
		if err != nil {
			return err
		}
		return printJSON(user)
	}),
}

var usersSetRoleCmd = &cobra.Command{
	Use:   "set-role USER_ID ROLE",
	Short: "Set or clear (with \"\") a user's global role",
	Args:  cobra.ExactArgs(2),
	RunE: dbCommand(func(ctx context.Context, e *env, db *sql.DB, args []string) error {
		policy, err := e.loadPolicy()
		if err != nil {
			return err
		}
		store := auth.NewUserStore(db, policy.Registry())
		if err := store.SetRole(ctx, args[0], args[1]); err != nil {
			return err
		}
		user, err := store.Find(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(user)
	}),
}

func init() {
	usersCmd.AddCommand(usersCreateCmd, usersSetRoleCmd)
	usersCreateCmd.Flags().StringVar(&userName, "name", "", "Display name")
	usersCreateCmd.Flags().StringVar(&userRole, "role", "", "Global role")
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
