package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/drivesink/drivesink/internal/sync"
	"github.com/drivesink/drivesink/internal/types"
	"github.com/drivesink/drivesink/internal/utils"
)

var runFlags struct {
	forceFullSync   bool
	dryRun          bool
	deleteOrphans   bool
	syncPermissions bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation pass",
	Long: `Run reconciles the configured Drive folder into the bucket once and
prints the resulting statistics. By default it resumes from the change feed;
--full forces a complete listing of both sides.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(utils.ExitConfigError)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, runCfg, cleanup, err := buildTarget(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(utils.ExitFatal)
		}
		defer cleanup()

		applyRunFlags(cmd, &runCfg)

		stats, runErr := engine.Run(ctx, runCfg)
		if stats != nil {
			printStats(stats, globalFlags.OutputFormat)
		}
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
			os.Exit(utils.GetExitCode(utils.ErrorCode(runErr)))
		}
		if stats.HasFailures() {
			os.Exit(utils.ExitPartialFailure)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runFlags.forceFullSync, "full", false, "Force a full listing instead of the change feed")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "Report what would happen without touching the bucket")
	runCmd.Flags().BoolVar(&runFlags.deleteOrphans, "delete-orphans", true, "Delete objects whose source file is gone")
	runCmd.Flags().BoolVar(&runFlags.syncPermissions, "sync-permissions", true, "Propagate source access lists into object metadata")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags merges the run command's flags onto the configured defaults.
// Set flags win in either direction; unset ones leave config alone.
func applyRunFlags(cmd *cobra.Command, runCfg *sync.RunConfig) {
	runCfg.ForceFullSync = runFlags.forceFullSync
	if cmd.Flags().Changed("dry-run") {
		runCfg.DryRun = runFlags.dryRun
	}
	if cmd.Flags().Changed("delete-orphans") {
		runCfg.DeleteOrphanedObjects = runFlags.deleteOrphans
	}
	if cmd.Flags().Changed("sync-permissions") {
		runCfg.SyncPermissions = runFlags.syncPermissions
	}
}

func printStats(stats *types.RunStatistics, format types.OutputFormat) {
	if format == types.OutputFormatJSON {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		fmt.Println(string(data))
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Strategy", stats.Strategy})
	table.Append([]string{"Scanned", strconv.Itoa(stats.FilesScanned)})
	table.Append([]string{"Added", strconv.Itoa(stats.FilesAdded)})
	table.Append([]string{"Updated", strconv.Itoa(stats.FilesUpdated)})
	table.Append([]string{"Deleted", strconv.Itoa(stats.FilesDeleted)})
	table.Append([]string{"Unchanged", strconv.Itoa(stats.FilesUnchanged)})
	table.Append([]string{"Failed", strconv.Itoa(stats.FilesFailed)})
	table.Append([]string{"Bytes transferred", strconv.FormatInt(stats.BytesTransferred, 10)})
	table.Append([]string{"Permissions synced", strconv.Itoa(stats.PermissionsSynced)})
	table.Append([]string{"Permissions failed", strconv.Itoa(stats.PermissionsFailed)})
	table.Render()
}
