// Command labctl manages experiments directly on the configured state store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/deliblab/deliblab/internal/api"
	"github.com/deliblab/deliblab/internal/config"
	"github.com/deliblab/deliblab/internal/experiment"
	"github.com/deliblab/deliblab/internal/logger"
	"github.com/deliblab/deliblab/internal/services"
)

// app is the state shared by every subcommand once the store is open.
type app struct {
	configPath string
	cfg        *config.Config
	store      *api.MemoryStore
	closeStore func() error
	out        io.Writer
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:           "labctl",
		Short:         "Manage deliberation experiments",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeStore != nil {
				return a.closeStore()
			}
			return nil
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&a.configPath, "config", "config.yaml", "Path to the YAML config")

	root.AddCommand(
		a.createCmd(),
		a.listCmd(),
		a.showCmd(),
		a.deleteCmd(),
		a.tallyCmd(),
		a.exportCmd(),
		templateCmd(out),
	)
	return root
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	store, closeFn, err := api.OpenStore(ctx, cfg, logger.Nop())
	if err != nil {
		return err
	}
	a.cfg, a.store, a.closeStore = cfg, store, closeFn
	return nil
}

// warnUnsynced tells the operator that a running server keeps its own copy of the state
// and overwrites this change on its next write unless it re-reads storage first.
func (a *app) warnUnsynced(cmd *cobra.Command) {
	if a.cfg == nil || a.cfg.GetRefreshInterval() > 0 {
		return
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "warning: a running server does not see this change until it refreshes; "+
		"call POST /api/admin/refresh before its next write or set refresh_interval")
}

func (a *app) experiments() *services.ExperimentService {
	return services.NewExperimentService(a.store)
}

func (a *app) createCmd() *cobra.Command {
	var participants int
	var templatePath string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an experiment and print its access codes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			req := services.CreateExperimentRequest{Name: args[0], Participants: participants}
			if templatePath != "" {
				f, err := os.Open(templatePath)
				if err != nil {
					return err
				}
				defer f.Close()
				if req.Template, err = experiment.LoadTemplate(f); err != nil {
					return err
				}
			}
			exp, err := a.experiments().Create(ctx, "labctl", req)
			if err != nil {
				return err
			}
			a.warnUnsynced(cmd)
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "USER\tACCESS CODE")
			for _, id := range exp.ParticipantIDs() {
				fmt.Fprintf(tw, "%s\t%s\n", id, exp.Participants[id].AccessCode)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&participants, "participants", "n", 4, "Number of participants")
	cmd.Flags().StringVar(&templatePath, "template", "", "Stage template YAML (default template when empty)")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List experiments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			list, err := a.experiments().List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPARTICIPANTS\tFINISHED\tSTAGES")
			for _, e := range list {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", e.Name, e.NumberOfParticipants, e.Finished, len(e.StageNames))
			}
			return tw.Flush()
		},
	}
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print an experiment as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			exp, err := a.experiments().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(exp)
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			if err := a.experiments().Delete(cmd.Context(), "labctl", args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted %s\n", args[0])
			a.warnUnsynced(cmd)
			return nil
		},
	}
}

func (a *app) tallyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tally <name> <vote-stage>",
		Short: "Rank participants by the votes of a leader-vote stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			exp, err := a.experiments().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ranking, err := experiment.Tally(exp, args[1])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tUSER\tSCORE")
			for i, c := range ranking {
				fmt.Fprintf(tw, "%d\t%s\t%d\n", i+1, c.UserID, c.Score)
			}
			return tw.Flush()
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	var kind, format, outPath string
	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Export chat, votes or survey answers as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			res, err := services.NewExportService(a.store).ExportCSV(cmd.Context(), services.ExportParams{Experiment: args[0], Kind: kind, Format: format})
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err = a.out.Write(res.Data)
				return err
			}
			return os.WriteFile(outPath, res.Data, 0o644)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "survey", "chat, votes or survey")
	cmd.Flags().StringVar(&format, "format", "long", "Survey layout: long or wide")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write to file instead of stdout")
	return cmd
}

func templateCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "template",
		Short: "Print the default stage template as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return experiment.WriteTemplate(out, experiment.DefaultTemplate())
		},
	}
}
