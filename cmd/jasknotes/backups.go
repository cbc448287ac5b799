package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jask/jasknotes/internal/backup"
	"github.com/jask/jasknotes/internal/storage"
)

var jobsLimit int

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List backups in the backup folder, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		h, err := a.resolver.Resolve(cmd.Context())
		switch {
		case errors.Is(err, storage.ErrNeedsUserGrant):
			return fmt.Errorf("no backup folder chosen yet; pick one from the settings screen")
		case errors.Is(err, storage.ErrPermissionDenied):
			return fmt.Errorf("storage permission not granted; allow it from the settings screen")
		case err != nil:
			return err
		}
		entries, err := backup.NewCatalog(a.log).List(cmd.Context(), h)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No backups available")
			return nil
		}
		fmt.Printf("%s\n", h.Location())
		for _, e := range entries {
			fmt.Printf("  %s\n", e.Name)
		}
		return nil
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Show recent backup jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		list, err := a.queue.Recent(cmd.Context(), jobsLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CREATED\tKIND\tARGUMENT\tSTATUS\tATTEMPTS\tERROR")
		for _, j := range list {
			lastErr := ""
			if j.LastError != nil {
				lastErr = *j.LastError
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", j.CreatedAt.Local().Format("2006-01-02 15:04"), j.Kind, j.Argument, j.Status, j.Attempts, lastErr)
		}
		return w.Flush()
	},
}

func init() {
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "number of jobs to show")
	backupsCmd.AddCommand(jobsCmd)
}
