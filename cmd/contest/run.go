package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hurttlocker/contest/internal/entry"
	"github.com/hurttlocker/contest/internal/export"
	"github.com/hurttlocker/contest/internal/ingest"
	"github.com/hurttlocker/contest/internal/override"
	"github.com/hurttlocker/contest/internal/pipeline"
	"github.com/hurttlocker/contest/internal/report"
	"github.com/hurttlocker/contest/internal/store"
)

type runOptions struct {
	out      string
	top      int
	asJSON   bool
	noStore  bool
	minLines int
	keepCase bool
}

func (c *cli) newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run <input>...",
		Short: "Import entries, run the pipeline, export, store and report",
		Long: `Reads every input (.html comment pages, .csv/.tsv, .json, .yaml, .txt),
extracts the 46 answer slots of each entry, applies the override list,
canonicalizes spellings and prints the per-question report. The final table is
written to --out when given and the run is stored unless --no-store is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, args, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.out, "out", "o", "", "write the final table to this .csv or .tsv file")
	f.IntVar(&opts.top, "top", 0, "frequency rows per question (0 = all)")
	f.BoolVar(&opts.asJSON, "json", false, "print the report as JSON")
	f.BoolVar(&opts.noStore, "no-store", false, "do not save the run")
	f.IntVar(&opts.minLines, "min-lines", ingest.DefaultMinLines, "minimum line breaks for a comment to count as an entry")
	f.BoolVar(&opts.keepCase, "keep-case", false, "do not lower-case comment text")
	return cmd
}

func (c *cli) run(cmd *cobra.Command, inputs []string, opts runOptions) error {
	ctx := cmd.Context()

	st, err := c.loadStages()
	if err != nil {
		return err
	}

	importOpts := ingest.DefaultOptions()
	importOpts.MinLines = opts.minLines
	importOpts.Lowercase = !opts.keepCase
	sources, imported, err := ingest.NewEngine(importOpts).Import(ctx, inputs...)
	if err != nil {
		return err
	}
	for _, ie := range imported.Errors {
		c.logger.Warn("input skipped", zap.String("file", ie.File), zap.String("reason", ie.Message))
	}
	c.logger.Info("entries imported",
		zap.Int("files", imported.FilesImported),
		zap.Int("comments", imported.CommentsRead),
		zap.Int("short_dropped", imported.ShortDropped),
		zap.Int("entries", imported.Kept()),
		zap.Strings("duplicate_authors", imported.DuplicateAuthors),
	)
	if len(sources) == 0 {
		return fmt.Errorf("no entries found in %s", strings.Join(inputs, ", "))
	}

	workers, err := c.cfg.WorkerCount()
	if err != nil {
		return err
	}
	p := &pipeline.Pipeline{
		Extractor: st.extractor,
		Overrides: override.New(st.extractor, override.WithLogger(c.logger)),
		Canon:     st.canon,
		Workers:   workers,
		Logger:    c.logger,
	}
	res, err := p.Run(ctx, sources, st.overrides)
	if err != nil {
		return err
	}
	final := res.Final()
	surgery := report.SurgeryFrom(res.Effective)

	if opts.out != "" {
		if err := export.WriteFile(opts.out, final); err != nil {
			return err
		}
		c.logger.Info("table exported", zap.String("path", opts.out), zap.Int("rows", final.Len()))
	}

	if !opts.noStore {
		s, err := c.openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		run := &store.Run{
			Inputs:    inputs,
			Aliases:   st.aliases.Source,
			Overrides: c.cfg.OverridesPath.Value,
			Surgery:   surgery,
			Duration:  res.Duration,
		}
		if err := s.SaveRun(ctx, run, final, res.Diagnostics); err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
		c.logger.Info("run stored", zap.String("run_id", run.ID), zap.String("db", c.cfg.DBPath.Value))
	}

	summary := report.Build(final, surgery, res.Diagnostics)
	return writeReport(cmd.OutOrStdout(), summary, opts.top, opts.asJSON)
}

func writeReport(w io.Writer, s report.Summary, top int, asJSON bool) error {
	if asJSON {
		return report.WriteJSON(w, s)
	}
	return report.WriteText(w, s, report.TextOptions{Top: top})
}

func (c *cli) newExtractCmd() *cobra.Command {
	var (
		author   string
		asJSON   bool
		keepCase bool
	)
	cmd := &cobra.Command{
		Use:   "extract <file|->",
		Short: "Extract a single entry and print its slots and diagnostics",
		Long: `Runs only the extraction stage on one entry blob read from a file, or from
stdin when the argument is "-". Useful for checking how an unusual entry will
be read before adding an override for it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			if !keepCase {
				text = strings.ToLower(text)
			}
			if author == "" {
				author = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}

			st, err := c.loadStages()
			if err != nil {
				return err
			}
			rec, diags := st.extractor.Extract(entry.Source{Index: 0, Author: author, Text: text})

			out := cmd.OutOrStdout()
			if asJSON {
				if diags == nil {
					diags = []entry.Diagnostic{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{"record": rec, "diagnostics": diags})
			}
			return writeRecord(out, rec, diags)
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "author name (default: file name)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	cmd.Flags().BoolVar(&keepCase, "keep-case", false, "do not lower-case the text")
	return cmd
}

func readInput(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(b), nil
}

func writeRecord(w io.Writer, rec entry.Record, diags []entry.Diagnostic) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "author\t%s\n", rec.Author)
	for _, c := range entry.Categories() {
		vals := make([]string, 0, c.Width())
		for _, s := range rec.Answers(c) {
			vals = append(vals, s.String())
		}
		fmt.Fprintf(tw, "%s\t%s\n", c, strings.Join(vals, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d of %d slots empty\n", rec.NullCount(), entry.SlotCount)
	for _, d := range diags {
		fmt.Fprintf(w, "  %s\n", d)
	}
	return nil
}
