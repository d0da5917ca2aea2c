package commands

import (
	"context"
	"fmt"
	"strings"
	"syscall"

	"golang.org/x/term"

	"questgen/internal/config"
	"questgen/internal/observability"
	"questgen/internal/services"
	contextutils "questgen/internal/utils"

	"github.com/spf13/cobra"
)

// CredentialCommands returns the credential pool management commands
func CredentialCommands(cfg *config.Config, pool *services.CredentialPool, logger *observability.Logger) *cobra.Command {
	credCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Credential pool commands",
		Long: `Credential pool commands for the question generator.

Available commands:
  show     - Show pool size and quarantine state
  add      - Add a credential and print the updated env value`,
		RunE: runShowCredentials(pool, logger),
	}

	// Add subcommands
	credCmd.AddCommand(showCredentialsCmd(pool, logger))
	credCmd.AddCommand(addCredentialCmd(cfg, logger))

	return credCmd
}

// showCredentialsCmd returns the show command
func showCredentialsCmd(pool *services.CredentialPool, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show credential pool state",
		Long:  `Show the configured credentials (masked) and their quarantine state.`,
		RunE:  runShowCredentials(pool, logger),
	}
}

// addCredentialCmd returns the add command
func addCredentialCmd(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "add",
		Short: "Add a credential to the pool",
		Long: `Prompt for a new API key without echoing it, then print the updated
GEMINI_API_KEYS value to install in the environment. The running pool is
not modified; restart services with the new value to pick it up.`,
		RunE: runAddCredential(cfg, logger),
	}
}

// runShowCredentials returns a function that prints the pool state
func runShowCredentials(pool *services.CredentialPool, logger *observability.Logger) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		logger.Info(ctx, "Showing credential pool state", map[string]interface{}{
			"pool_size":   pool.Size(),
			"quarantined": pool.QuarantinedCount(),
		})

		// Print header to stdout (user-facing table)
		fmt.Printf("%-5s %-20s %-12s %-25s\n", "#", "Key", "State", "Quarantined At")
		fmt.Println(strings.Repeat("-", 65))

		for i, status := range pool.Snapshot() {
			state := "active"
			quarantinedAt := ""
			if status.Quarantined {
				state = "quarantined"
				if status.QuarantinedAt != nil {
					quarantinedAt = status.QuarantinedAt.Format("2006-01-02 15:04:05")
				}
			}
			fmt.Printf("%-5d %-20s %-12s %-25s\n", i+1, status.MaskedKey, state, quarantinedAt)
		}

		fmt.Printf("\nPool size: %d, quarantined: %d\n", pool.Size(), pool.QuarantinedCount())
		return nil
	}
}

// runAddCredential returns a function that adds a credential
func runAddCredential(cfg *config.Config, logger *observability.Logger) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		// Prompt for the key securely
		fmt.Print("Enter new API key: ")
		keyBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read API key: %v", err)
		}
		newKey := strings.TrimSpace(string(keyBytes))
		fmt.Println() // New line after hidden input

		if newKey == "" {
			return contextutils.ErrorWithContextf("API key cannot be empty")
		}

		// Confirm the key
		fmt.Print("Confirm new API key: ")
		confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read API key confirmation: %v", err)
		}
		confirmKey := strings.TrimSpace(string(confirmBytes))
		fmt.Println() // New line after hidden input

		if newKey != confirmKey {
			return contextutils.ErrorWithContextf("API keys do not match")
		}

		for _, existing := range cfg.Generation.APIKeys {
			if existing == newKey {
				return contextutils.ErrorWithContextf("API key is already in the pool")
			}
		}

		updated := make([]string, 0, len(cfg.Generation.APIKeys)+1)
		updated = append(updated, cfg.Generation.APIKeys...)
		updated = append(updated, newKey)

		logger.Info(ctx, "Credential added", map[string]interface{}{
			"pool_size": len(updated),
			"key":       contextutils.MaskAPIKey(newKey),
		})

		fmt.Printf("Pool now holds %d credentials. Set the following in the environment:\n\n", len(updated))
		fmt.Printf("GEMINI_API_KEYS=%s\n", strings.Join(updated, ","))
		return nil
	}
}
