package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/miradorstack/mirador-spiro/internal/api"
	"github.com/miradorstack/mirador-spiro/internal/cache"
	"github.com/miradorstack/mirador-spiro/internal/engine"
	"github.com/miradorstack/mirador-spiro/internal/ingest"
	"github.com/miradorstack/mirador-spiro/internal/models"
	"github.com/miradorstack/mirador-spiro/internal/spiro"
	"github.com/miradorstack/mirador-spiro/internal/utils"
)

type analyzeOptions struct {
	timeUnit string
	columns  string
	noHeader bool
	asJSON   bool
	rules    string
	server   string
	timeout  time.Duration
}

func newAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze <file.csv>...",
		Short: "Compute metrics and validity checks for recorded maneuvers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			logger := utils.NewLoggerTo(cmd.ErrOrStderr(), level, false)
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), logger, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.timeUnit, "time-unit", "seconds", "Unit of the time column (seconds|milliseconds)")
	cmd.Flags().StringVar(&opts.columns, "columns", "3,4,5", "Zero-based time,volume,flow column indexes")
	cmd.Flags().BoolVar(&opts.noHeader, "no-header", false, "Treat the first row as data")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print results as JSON lines")
	cmd.Flags().StringVar(&opts.rules, "rules", "", "Recommendation rule pack (YAML)")
	cmd.Flags().StringVar(&opts.server, "server", "", "Analyze on a remote mirador-spiro gRPC address instead of locally")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Remote call timeout")
	return cmd
}

type analyzeFunc func(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error)

func runAnalyze(ctx context.Context, out io.Writer, logger *slog.Logger, opts *analyzeOptions, files []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := spiro.ParseTimeUnit(opts.timeUnit); err != nil {
		return err
	}
	layout, err := ingest.DefaultLayout().ParseColumns(opts.columns)
	if err != nil {
		return err
	}
	if opts.noHeader {
		layout.HeaderRows = 0
	}

	analyze, closeFn, err := newAnalyzer(logger, opts)
	if err != nil {
		return err
	}
	defer closeFn()

	for _, path := range files {
		samples, err := readSamples(path, layout)
		if err != nil {
			return err
		}
		req := models.AnalysisRequest{
			Trial:    models.Trial{ID: filepath.Base(path)},
			Samples:  samples,
			TimeUnit: opts.timeUnit,
		}
		result, err := analyze(ctx, req)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if opts.asJSON {
			if err := json.NewEncoder(out).Encode(result); err != nil {
				return err
			}
			continue
		}
		if err := writeReport(out, result); err != nil {
			return err
		}
	}
	return nil
}

func newAnalyzer(logger *slog.Logger, opts *analyzeOptions) (analyzeFunc, func(), error) {
	if opts.server != "" {
		conn, err := grpc.NewClient(opts.server, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("connect %s: %w", opts.server, err)
		}
		client := api.NewAnalyzerClient(conn)
		remote := func(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
			ctx, cancel := context.WithTimeout(ctx, opts.timeout)
			defer cancel()
			doc, err := api.ToStructRequest(req)
			if err != nil {
				return models.AnalysisResult{}, err
			}
			res, err := client.Analyze(ctx, doc)
			if err != nil {
				return models.AnalysisResult{}, err
			}
			return api.FromStructResult(res)
		}
		return remote, func() { _ = conn.Close() }, nil
	}

	rules, err := engine.NewRuleEngine(opts.rules, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("load rules: %w", err)
	}
	if opts.rules != "" && rules == nil {
		return nil, nil, fmt.Errorf("rule pack %s not found", opts.rules)
	}
	provider := cache.NewMemoryProvider()
	pipeline := engine.NewPipeline(logger, rules, provider, engine.PipelineOptions{})
	return pipeline.Analyze, func() { _ = provider.Close() }, nil
}

func readSamples(path string, layout ingest.Layout) ([]spiro.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	samples, err := ingest.ReadCSV(f, layout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

func writeReport(w io.Writer, res models.AnalysisResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	m := res.Metrics
	unit := string(res.TimeUnit)

	fmt.Fprintf(tw, "Trial\t%s\n", res.Trial.ID)
	fmt.Fprintf(tw, "Samples\t%d\n", res.SampleCount)
	fmt.Fprintf(tw, "FVC (L)\t%s\n", optional(m.FVC))
	fmt.Fprintf(tw, "FEV1 (L)\t%s\n", optional(m.FEV1))
	fmt.Fprintf(tw, "FEV1/FVC\t%s\n", optional(m.FEV1FVCRatio))
	fmt.Fprintf(tw, "New time zero (%s)\t%s\n", unit, optional(m.NewTimeZero))
	fmt.Fprintf(tw, "EV (L)\t%s\n", optional(m.EV))
	fmt.Fprintf(tw, "EV threshold (L)\t%s\n", format(m.EVThreshold))
	fmt.Fprintf(tw, "EV check\t%s\n", m.EVCheck)
	fmt.Fprintf(tw, "Peak flow time (%s)\t%s\n", unit, optional(m.HighestFlowTimeAfterZero))
	fmt.Fprintf(tw, "Flow timing check\t%s\n", m.FlowTimingCheck)
	fmt.Fprintf(tw, "Transitions\t%d exhale->inhale, %d inhale->exhale\n",
		len(res.Transitions.ExhaleToInhale), len(res.Transitions.InhaleToExhale))
	fmt.Fprintf(tw, "Flow rebounds\t%d\n", len(res.FlowRebounds))
	for _, rec := range res.Recommendations {
		fmt.Fprintf(tw, "Recommendation\t%s\n", rec)
	}
	fmt.Fprintln(tw)
	return tw.Flush()
}

func optional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return format(*v)
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
