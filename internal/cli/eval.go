package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"rageval/config"
	"rageval/internal/adapter/corpus"
	"rageval/internal/adapter/store"
	"rageval/internal/domain"
	"rageval/internal/usecase"
)

var (
	evalQueriesPath string
	evalRerankers   []string
	evalOutPath     string
	evalFailures    bool
	evalRepeats     int
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate retrieval quality against a labeled query set",
	Long: `Run every labeled query through one or more retrieval configurations
and report Recall@k and MRR per configuration.

Examples:
  rageval eval --queries eval.jsonl
  rageval eval --queries eval.jsonl --rerankers none,cross_encoder
  rageval eval --queries eval.jsonl --failures --out report.json`,
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().StringVar(&evalQueriesPath, "queries", "", "labeled query set JSONL (required)")
	evalCmd.Flags().StringSliceVar(&evalRerankers, "rerankers", nil, "reranker variants to compare (default from config)")
	evalCmd.Flags().StringVar(&evalOutPath, "out", "", "write the full JSON report to this path")
	evalCmd.Flags().BoolVar(&evalFailures, "failures", false, "classify and print per-query failures")
	evalCmd.Flags().IntVar(&evalRepeats, "repeats", 0, "repeat runs per configuration (default from config)")
	evalCmd.MarkFlagRequired("queries")
}

// evalReport is the JSON document written by --out.
type evalReport struct {
	Comparison domain.Comparison                 `json:"comparison"`
	Outcomes   map[string][]domain.QueryOutcome  `json:"outcomes,omitempty"`
	Failures   map[string][]domain.FailureRecord `json:"failures,omitempty"`
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	queries, err := corpus.LoadQuerySet(evalQueriesPath)
	if err != nil {
		return err
	}
	if len(queries) == 0 {
		return fmt.Errorf("query set %s is empty", evalQueriesPath)
	}

	dbPath := config.SnapshotPath(GetRootDir())
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found. Run 'rageval index' first")
	}
	snapshot, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer snapshot.Close()

	index, err := usecase.LoadIndex(snapshot)
	if err != nil {
		return err
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}

	rerankers := evalRerankers
	if len(rerankers) == 0 {
		rerankers = []string{cfg.Retrieve.Reranker}
	}

	runners := make([]usecase.QueryRunner, 0, len(rerankers))
	for _, name := range rerankers {
		pipeline, err := buildPipeline(cfg, index, embedder, name)
		if err != nil {
			return err
		}
		runners = append(runners, pipeline)
	}

	repeats := cfg.Eval.Repeats
	if evalRepeats > 0 {
		repeats = evalRepeats
	}

	total := len(queries) * len(runners) * max(repeats, 1)
	bar := progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan]Evaluating[reset]"),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	harness, err := usecase.NewHarness(usecase.HarnessConfig{
		RecallKs: cfg.Eval.RecallKs,
		Workers:  cfg.Eval.Workers,
		Repeats:  repeats,
		Progress: func(done, totalQueries int) {
			bar.Add(1)
		},
	}, GetLogger())
	if err != nil {
		return err
	}

	comparison, outcomes, err := harness.Compare(cmd.Context(), runners, queries)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	printComparison(comparison, cfg.Eval.RecallKs)

	report := evalReport{Comparison: comparison, Outcomes: outcomes}

	if evalFailures {
		analyzer, err := usecase.NewAnalyzer(usecase.AnalyzerConfig{
			RankCutoff:    cfg.Eval.RankCutoff,
			DriftQuantile: cfg.Eval.DriftQuantile,
		}, index.Chunk)
		if err != nil {
			return err
		}

		report.Failures = make(map[string][]domain.FailureRecord, len(outcomes))
		for label, outs := range outcomes {
			report.Failures[label] = analyzer.Analyze(outs)
		}
		printFailures(report.Failures)
	}

	if evalOutPath != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		if err := os.WriteFile(evalOutPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("\nReport written to %s\n", evalOutPath)
	}

	return nil
}

func printComparison(comparison domain.Comparison, recallKs []int) {
	ks := make([]int, len(recallKs))
	copy(ks, recallKs)
	sort.Ints(ks)

	header := []string{"config", "queries", "failed"}
	for _, k := range ks {
		header = append(header, fmt.Sprintf("recall@%d", k))
	}
	header = append(header, "mrr")

	fmt.Println()
	fmt.Println(strings.Join(header, "\t"))

	for _, r := range comparison.Reports {
		row := []string{r.Config, fmt.Sprintf("%d", r.Queries), fmt.Sprintf("%d", r.Failed)}
		for _, k := range ks {
			cell := fmt.Sprintf("%.4f", r.RecallAt[k])
			if spread, ok := r.RecallAtSpread[k]; ok && spread > 0 {
				cell += fmt.Sprintf("±%.4f", spread/2)
			}
			row = append(row, cell)
		}
		mrr := fmt.Sprintf("%.4f", r.MRR)
		if r.MRRSpread > 0 {
			mrr += fmt.Sprintf("±%.4f", r.MRRSpread/2)
		}
		row = append(row, mrr)
		if r.Incomplete {
			row = append(row, "(incomplete)")
		}
		fmt.Println(strings.Join(row, "\t"))
	}
}

func printFailures(failures map[string][]domain.FailureRecord) {
	labels := make([]string, 0, len(failures))
	for label := range failures {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		records := failures[label]
		fmt.Printf("\nFailures for %s: %d\n", label, len(records))

		byCategory := make(map[domain.FailureCategory]int)
		for _, rec := range records {
			byCategory[rec.Category]++
		}
		for _, cat := range []domain.FailureCategory{
			domain.CategoryRetrievalMiss,
			domain.CategorySemanticDrift,
			domain.CategoryInsufficientContext,
			domain.CategoryAmbiguousQuery,
		} {
			if n := byCategory[cat]; n > 0 {
				fmt.Printf("  %-22s %d\n", cat, n)
			}
		}
		for _, rec := range records {
			fmt.Printf("  - %s: %s\n", rec.QueryID, rec.Category)
		}
	}
}
