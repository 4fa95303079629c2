package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/drivesink/drivesink/internal/auth"
	"github.com/drivesink/drivesink/internal/utils"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored credentials",
}

var authImportCmd = &cobra.Command{
	Use:   "import <key-file>",
	Short: "Store a service account key under the current profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(utils.ExitConfigError)
		}
		key, err := auth.ParseServiceAccountKey(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(utils.ExitConfigError)
		}

		store, err := credentialStore()
		if err != nil {
			return err
		}
		if err := store.Save(globalFlags.Profile, data); err != nil {
			return fmt.Errorf("failed to store credentials: %w", err)
		}
		fmt.Printf("Stored credentials for %s (profile %q, backend %s)\n",
			key.ClientEmail, globalFlags.Profile, store.Name())
		return nil
	},
}

var authRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Delete the stored key for the current profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		store, err := credentialStore()
		if err != nil {
			return err
		}
		if err := store.Delete(globalFlags.Profile); err != nil {
			return fmt.Errorf("failed to delete credentials: %w", err)
		}
		fmt.Printf("Removed credentials for profile %q\n", globalFlags.Profile)
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which credentials the current profile resolves to",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		store, err := credentialStore()
		if err != nil {
			return err
		}
		data, err := store.Load(globalFlags.Profile)
		if err != nil {
			fmt.Printf("Profile %q: no stored key, application default credentials will be used\n",
				globalFlags.Profile)
			return nil
		}
		key, err := auth.ParseServiceAccountKey(data)
		if err != nil {
			fmt.Printf("Profile %q: stored key is invalid (%v)\n", globalFlags.Profile, err)
			return nil
		}
		fmt.Printf("Profile %q: %s (project %s, backend %s)\n",
			globalFlags.Profile, key.ClientEmail, key.ProjectID, store.Name())
		return nil
	},
}

func init() {
	authCmd.AddCommand(authImportCmd)
	authCmd.AddCommand(authRemoveCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
