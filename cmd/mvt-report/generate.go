package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/exploopio/mvtreport/pkg/archive"
	"github.com/exploopio/mvtreport/pkg/audit"
	"github.com/exploopio/mvtreport/pkg/compress"
	"github.com/exploopio/mvtreport/pkg/config"
	"github.com/exploopio/mvtreport/pkg/core"
	"github.com/exploopio/mvtreport/pkg/metrics"
	"github.com/exploopio/mvtreport/pkg/pipeline"
)

type generateOptions struct {
	deviceType  string
	output      string
	format      string
	metricsFile string
	noArchive   bool
	parallel    bool
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate <source-dir>",
		Short: "Generate a report from a scan output directory",
		Long: `Generate reads every *.json artifact (optionally .gz or .zst compressed)
in the source directory and writes the report into that same directory.
The device type is detected from the artifacts when --device-type is not
given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, root, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.deviceType, "device-type", "d", "", "Device type (iOS or Android, detected when empty)")
	f.StringVarP(&opts.output, "output", "o", "", "Report file name (generated when empty)")
	f.StringVarP(&opts.format, "format", "f", "", "Output format: html or md")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after the run")
	f.BoolVar(&opts.noArchive, "no-archive", false, "Do not record the run in the history archive")
	f.BoolVar(&opts.parallel, "parallel", false, "Run section analyzers concurrently")
	return cmd
}

func runGenerate(cmd *cobra.Command, root *rootOptions, opts *generateOptions, sourceDir string) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	applyGenerateFlags(cmd, cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := cfg.NewLogger(root.verbose)
	if zl, ok := log.(*core.ZapLogger); ok {
		defer func() { _ = zl.Sync() }()
	}

	popts := []pipeline.Option{
		pipeline.WithFormat(cfg.OutputFormat()),
		pipeline.WithPrefix(cfg.Report.Prefix),
		pipeline.WithStyle(cfg.Style),
		pipeline.WithPolicy(cfg.Policy),
		pipeline.WithLocation(cfg.Location()),
		pipeline.WithParallel(cfg.Report.Parallel),
		pipeline.WithMinFreeBytes(cfg.Report.MinFreeBytes),
		pipeline.WithFindingsSuffix(cfg.Report.FindingsSuffix),
		pipeline.WithLoadWorkers(runtime.NumCPU()),
		pipeline.WithLogger(log),
	}

	if cfg.Archive.Enabled {
		if a := openArchive(cfg, log); a != nil {
			defer a.Close()
			popts = append(popts, pipeline.WithArchive(a))
		}
	}

	if cfg.Audit.Enabled {
		trail, err := audit.NewLogger(&audit.LoggerConfig{LogFile: cfg.Audit.Path, Logger: log})
		if err != nil {
			log.Warn("Audit trail disabled: %v", err)
		} else {
			defer trail.Close()
			popts = append(popts, pipeline.WithAudit(trail))
		}
	}

	var collector *metrics.PrometheusCollector
	if cfg.Metrics.Textfile != "" {
		collector = metrics.NewPrometheusCollector(nil)
		popts = append(popts, pipeline.WithMetrics(collector))
		defer func() {
			if err := collector.WriteTextfile(cfg.Metrics.Textfile); err != nil {
				log.Warn("Writing metrics failed: %v", err)
			}
		}()
	}

	res, err := pipeline.New(popts...).Generate(cmd.Context(), sourceDir, opts.deviceType, opts.output)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Report written: %s\n", res.OutputPath)
	fmt.Fprintf(out, "Device type:    %s\n", res.DeviceType)
	if cfg.Archive.Enabled {
		fmt.Fprintf(out, "Findings:       %d (%d new)\n", res.Findings, res.NewFindings)
	} else {
		fmt.Fprintf(out, "Findings:       %d\n", res.Findings)
	}
	rc := res.Recommendations
	fmt.Fprintf(out, "Actions:        %d recommendations (%d immediate, %d high), top priority %s\n",
		rc.Total, rc.Immediate, rc.High, rc.Highest().Token())
	if len(res.Warnings) > 0 {
		fmt.Fprintf(out, "Skipped files:  %d\n", len(res.Warnings))
		for _, w := range res.Warnings {
			fmt.Fprintf(out, "  - %s\n", w)
		}
	}
	if len(res.Failures) > 0 {
		fmt.Fprintf(out, "Section errors: %d\n", len(res.Failures))
		for _, f := range res.Failures {
			fmt.Fprintf(out, "  - %s\n", f.Error())
		}
	}
	fmt.Fprintf(out, "Run ID:         %s\n", res.RunID)
	return nil
}

// applyGenerateFlags lets explicitly set flags win over file and environment.
func applyGenerateFlags(cmd *cobra.Command, cfg *config.Config, opts *generateOptions) {
	f := cmd.Flags()
	if f.Changed("format") {
		cfg.Report.Format = opts.format
	}
	if f.Changed("metrics-file") {
		cfg.Metrics.Textfile = opts.metricsFile
	}
	if f.Changed("parallel") {
		cfg.Report.Parallel = opts.parallel
	}
	if opts.noArchive {
		cfg.Archive.Enabled = false
	}
}

// openArchive opens the history database. A failure disables archiving for
// this run only.
func openArchive(cfg *config.Config, log core.Logger) *archive.Archive {
	algo, err := compress.ParseAlgorithm(cfg.Archive.Compression)
	if err != nil {
		algo = compress.AlgorithmZSTD
	}
	a, err := archive.Open(&archive.Config{
		DatabasePath: cfg.Archive.Path,
		Compression:  algo,
	})
	if err != nil {
		log.Warn("Archive disabled: %v", err)
		cfg.Archive.Enabled = false
		return nil
	}
	return a
}
