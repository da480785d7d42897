package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/contest/internal/export"
	"github.com/hurttlocker/contest/internal/override"
	"github.com/hurttlocker/contest/internal/report"
	"github.com/hurttlocker/contest/internal/store"
)

func (c *cli) newReportCmd() *cobra.Command {
	var (
		runID  string
		top    int
		asJSON bool
		out    string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the report for a stored run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := c.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := pickRun(cmd, s, runID)
			if err != nil {
				return err
			}
			t, err := s.LoadTable(ctx, run.ID)
			if err != nil {
				return err
			}
			if out != "" {
				if err := export.WriteFile(out, t); err != nil {
					return err
				}
			}

			summary := report.Build(t, run.Surgery, nil)
			if len(run.Diagnostics) > 0 {
				summary.Diagnostics = run.Diagnostics
			}
			return writeReport(cmd.OutOrStdout(), summary, top, asJSON)
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id (default: latest)")
	cmd.Flags().IntVar(&top, "top", 0, "frequency rows per question (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().StringVarP(&out, "out", "o", "", "also export the stored table to this .csv or .tsv file")
	return cmd
}

func pickRun(cmd *cobra.Command, s store.Store, id string) (*store.Run, error) {
	if id != "" {
		return s.GetRun(cmd.Context(), id)
	}
	run, err := s.LatestRun(cmd.Context())
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, errors.New("no runs stored yet; use `contest run` first")
	}
	return run, nil
}

func (c *cli) newRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(w, "No runs stored.")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tENTRIES\tDELETED\tMAJOR\tMINOR")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"),
					r.Entries, r.Deleted, r.Surgery.Major, r.Surgery.Minor)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	return cmd
}

func (c *cli) newCheckConfigCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate alias and override files and show shadowed aliases",
		Long: `Loads the alias data and override list the way run does and reports any
error. Lists alias keys hidden by a higher-priority table in the same question;
only keys mapping to a different value are shown unless --all is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.loadStages()
			if err != nil {
				return err
			}
			return writeConfigCheck(cmd.OutOrStdout(), st, c.cfg.OverridesPath.Value, all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "also list shadowed keys that map to the same value")
	return cmd
}

func writeConfigCheck(w io.Writer, st *stages, overridesPath string, all bool) error {
	fmt.Fprintf(w, "aliases: %s (%d tables, %d questions configured)\n",
		st.aliases.Source, len(st.aliases.Canon.Tables), len(st.aliases.Canon.Categories))

	shadows := st.canon.Shadows()
	conflicting := 0
	for _, sh := range shadows {
		if !sh.Same {
			conflicting++
		}
	}
	fmt.Fprintf(w, "shadowed keys: %d (%d map to a different value)\n", len(shadows), conflicting)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, sh := range shadows {
		if sh.Same && !all {
			continue
		}
		fmt.Fprintf(tw, "  %s\t%q\t%s wins over %s\n", sh.Category, sh.Key, sh.Winner, sh.Loser)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if overridesPath == "" {
		fmt.Fprintln(w, "overrides: none configured")
		return nil
	}
	byAction := make(map[override.Action]int)
	indices := make(map[int]bool)
	for _, ov := range st.overrides {
		byAction[ov.Action]++
		indices[ov.Index] = true
	}
	fmt.Fprintf(w, "overrides: %s (%d overrides on %d entries)\n", overridesPath, len(st.overrides), len(indices))
	for _, a := range override.Actions() {
		fmt.Fprintf(w, "  %-12s %d\n", a, byAction[a])
	}
	return nil
}
