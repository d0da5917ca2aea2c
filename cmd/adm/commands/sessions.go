package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"questgen/internal/observability"
	"questgen/internal/services"
	contextutils "questgen/internal/utils"

	"github.com/spf13/cobra"
)

// SessionCommands returns the generation session inspection commands
func SessionCommands(sessionService *services.SessionService, logger *observability.Logger, databaseURL string) *cobra.Command {
	var limit int

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent generation sessions",
		Long: `List recent generation sessions with their status and progress.

Use --limit to control how many sessions are shown.`,
		RunE: runListSessions(sessionService, logger, databaseURL, &limit),
	}

	sessionsCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to show")

	return sessionsCmd
}

// runListSessions returns a function that prints the session table
func runListSessions(sessionService *services.SessionService, logger *observability.Logger, databaseURL string, limit *int) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logger.Info(ctx, "Diagnostic info", map[string]interface{}{
			"config_file":  os.Getenv("QUESTGEN_CONFIG_FILE"),
			"database_url": maskDatabaseURL(databaseURL),
			"limit":        *limit,
		})

		sessions, err := sessionService.ListRecentSessions(ctx, *limit)
		if err != nil {
			return contextutils.WrapError(err, "failed to list sessions")
		}

		if len(sessions) == 0 {
			fmt.Println("No generation sessions found")
			return nil
		}

		// Print header to stdout (user-facing table)
		fmt.Printf("%-38s %-10s %-15s %-8s %-9s %-20s\n", "ID", "Status", "Mode", "Topics", "Progress", "Created")
		fmt.Println(strings.Repeat("-", 105))

		for _, session := range sessions {
			topics := fmt.Sprintf("%d/%d", session.CompletedTopics+session.FailedTopics, session.TotalTopics)
			progress := fmt.Sprintf("%.1f%%", session.Progress())
			fmt.Printf("%-38s %-10s %-15s %-8s %-9s %-20s\n",
				session.ID,
				session.Status,
				session.GenerationMode,
				topics,
				progress,
				session.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}

		fmt.Printf("\nTotal: %d sessions\n", len(sessions))
		return nil
	}
}
