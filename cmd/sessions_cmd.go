package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/datalens/internal/config"
	"github.com/nextlevelbuilder/datalens/internal/session"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "View and manage conversation sessions",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsShowCmd())
	cmd.AddCommand(sessionsClearCmd())
	return cmd
}

func sessionsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cp, err := openCLICheckpointer()
			if err != nil {
				return err
			}
			defer cp.Close()

			ctx := context.Background()
			ids, err := cp.List(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(ids, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			if len(ids) == 0 {
				fmt.Println("No sessions.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tMESSAGES")
			for _, id := range ids {
				history, err := cp.Load(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\n", id, len(history))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func sessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [session]",
		Short: "Print a session's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cp, err := openCLICheckpointer()
			if err != nil {
				return err
			}
			defer cp.Close()

			id := config.NormalizeSessionID(args[0])
			history, err := cp.Load(context.Background(), id)
			if err != nil {
				return err
			}
			if len(history) == 0 {
				fmt.Printf("Session %s is empty.\n", id)
				return nil
			}
			data, _ := json.MarshalIndent(history, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
}

func sessionsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [session]",
		Short: "Delete a session's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cp, err := openCLICheckpointer()
			if err != nil {
				return err
			}
			defer cp.Close()

			id := config.NormalizeSessionID(args[0])
			if err := cp.Delete(context.Background(), id); err != nil {
				return err
			}
			fmt.Printf("Cleared session: %s\n", id)
			return nil
		},
	}
}

func openCLICheckpointer() (session.Checkpointer, error) {
	cfg := loadConfig()
	cp, err := openCheckpointer(context.Background(), cfg.Sessions)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("no session store configured (set sessions.sqlite_path or sessions.redis_url)")
	}
	return cp, nil
}
