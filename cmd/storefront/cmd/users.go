package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/storefront/config"
	"github.com/jmcleod/storefront/internal/util"
	"github.com/jmcleod/storefront/users"
)

const generatedPasswordLen = 16

var (
	userName     string
	userEmail    string
	userPassword string
	userAdmin    bool
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage the user directory",
}

var usersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a user to the directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return err
		}
		dir, closeDir, err := openDirectory(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeDir()

		password := userPassword
		generated := password == ""
		if generated {
			if password, err = util.RandomChars(generatedPasswordLen); err != nil {
				return err
			}
		}

		u, err := users.New(userName, userEmail, password, userAdmin)
		if err != nil {
			return err
		}
		if err := dir.Create(cmd.Context(), u); err != nil {
			return fmt.Errorf("failed to add user: %w", err)
		}

		fmt.Printf("Added user %s (%s)\n", u.Email, u.ID)
		if generated {
			fmt.Printf("Generated password: %s\n", password)
		}
		return nil
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users in the directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return err
		}
		dir, closeDir, err := openDirectory(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeDir()

		all, err := dir.List(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tADMIN\tCREATED")
		for _, u := range all {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\n", u.ID, u.Email, u.Name, u.IsAdmin, u.CreatedAt.Format(time.DateOnly))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersAddCmd, usersListCmd)

	usersCmd.PersistentFlags().String("data-dir", "./data", "Directory for persistent data")
	usersCmd.PersistentFlags().String("postgres-dsn", "", "PostgreSQL DSN for the user directory")

	usersAddCmd.Flags().StringVar(&userName, "name", "", "Display name")
	usersAddCmd.Flags().StringVar(&userEmail, "email", "", "E-mail address (login name)")
	usersAddCmd.Flags().StringVar(&userPassword, "password", "", "Password (generated when empty)")
	usersAddCmd.Flags().BoolVar(&userAdmin, "admin", false, "Grant admin rights")
	usersAddCmd.MarkFlagRequired("email")
}
