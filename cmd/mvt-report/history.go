package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/exploopio/mvtreport/pkg/archive"
	"github.com/exploopio/mvtreport/pkg/compress"
	"github.com/exploopio/mvtreport/pkg/config"
	"github.com/exploopio/mvtreport/pkg/errors"
	"github.com/exploopio/mvtreport/pkg/render"
	"github.com/exploopio/mvtreport/pkg/shared/fingerprint"
)

type historyOptions struct {
	limit    int
	runID    string
	export   string
	deleteID string
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	opts := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived report runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, root, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")
	cmd.Flags().StringVar(&opts.runID, "run", "", "Show the findings of one run")
	cmd.Flags().StringVar(&opts.export, "export", "", "With --run, re-render the archived report to this file (.html or .md)")
	cmd.Flags().StringVar(&opts.deleteID, "delete", "", "Remove a run and its findings from the archive")
	cmd.MarkFlagsMutuallyExclusive("run", "delete")
	return cmd
}

func runHistory(cmd *cobra.Command, root *rootOptions, opts *historyOptions) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	algo, _ := compress.ParseAlgorithm(cfg.Archive.Compression)
	a, err := archive.Open(&archive.Config{DatabasePath: cfg.Archive.Path, Compression: algo})
	if err != nil {
		return err
	}
	defer a.Close()

	loc := cfg.Location()
	out := cmd.OutOrStdout()
	switch {
	case opts.export != "" && opts.runID == "":
		return errors.E(errors.KindInvalidInput, "history", "--export requires --run")
	case opts.export != "":
		return exportRun(cmd, cfg, a, opts.runID, opts.export, out)
	case opts.deleteID != "":
		return deleteRun(cmd, a, opts.deleteID, out)
	case opts.runID != "":
		return showRun(cmd, a, opts.runID, loc, out)
	}

	runs, err := a.ListRuns(cmd.Context(), opts.limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No archived runs.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tCREATED\tDEVICE\tFINDINGS\tERRORS\tREPORT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.CreatedAt.In(loc).Format(time.DateTime), r.DeviceType, r.Findings, r.SectionFailures, r.OutputPath)
	}
	return tw.Flush()
}

func findRun(cmd *cobra.Command, a *archive.Archive, id string) (*archive.Run, error) {
	run, err := a.GetRun(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, errors.Errorf(errors.KindInvalidInput, "history", "run %s not found", id)
	}
	return run, nil
}

func showRun(cmd *cobra.Command, a *archive.Archive, id string, loc *time.Location, out io.Writer) error {
	run, err := findRun(cmd, a, id)
	if err != nil {
		return err
	}
	recs, err := a.RunFindings(cmd.Context(), id)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Run:        %s\n", run.ID)
	fmt.Fprintf(out, "Created:    %s\n", run.CreatedAt.In(loc).Format(time.DateTime))
	fmt.Fprintf(out, "Source:     %s\n", run.SourceDir)
	fmt.Fprintf(out, "Device:     %s\n", run.DeviceType)
	fmt.Fprintf(out, "Report:     %s (%s)\n", run.OutputPath, run.Format)
	fmt.Fprintf(out, "Findings:   %d in %d categories\n", run.Findings, run.Categories)
	fmt.Fprintf(out, "Stored:     %d bytes, %s, ratio %.2f\n", run.DocumentSize, run.Compression, run.CompressionRatio)
	if len(recs) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCATEGORY\tSUMMARY\tFINGERPRINT")
	for _, r := range recs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Position+1, r.Category, r.Summary, fingerprint.Short(r.Fingerprint))
	}
	return tw.Flush()
}

// exportRun renders the archived document of a run again. The format
// follows the file extension and falls back to the run's own format.
func exportRun(cmd *cobra.Command, cfg *config.Config, a *archive.Archive, id, path string, out io.Writer) error {
	run, err := findRun(cmd, a, id)
	if err != nil {
		return err
	}
	doc, err := a.LoadDocument(cmd.Context(), run.ID)
	if err != nil {
		return err
	}

	format, err := render.ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil || filepath.Ext(path) == "" {
		if format, err = render.ParseFormat(run.Format); err != nil {
			return err
		}
		path = render.EnsureExtension(path, format)
	}
	renderer, err := render.New(format, cfg.Style)
	if err != nil {
		return err
	}
	if err := render.WriteFile(cmd.Context(), renderer, doc, path, render.WithMinFreeBytes(cfg.Report.MinFreeBytes)); err != nil {
		return err
	}
	fmt.Fprintf(out, "Report exported: %s\n", path)
	return nil
}

func deleteRun(cmd *cobra.Command, a *archive.Archive, id string, out io.Writer) error {
	if _, err := findRun(cmd, a, id); err != nil {
		return err
	}
	if err := a.DeleteRun(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted run %s\n", id)
	return nil
}
