package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rageval/config"
	"rageval/internal/adapter/store"
	"rageval/internal/domain"
	"rageval/internal/usecase"
)

var (
	queryText     string
	queryTopK     int
	queryJSON     bool
	queryReranker string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a single retrieval against the index",
	Long: `Retrieve the top-k chunks for a query, optionally reranked.

Examples:
  rageval query -q "authentication handler"
  rageval query -q "database pooling" --top-k 5 --reranker llm_judge --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "query text (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().StringVar(&queryReranker, "reranker", "", "reranker override (none, cross_encoder, llm_judge, mmr)")
	queryCmd.MarkFlagRequired("query")
}

// queryResult is the per-candidate CLI output shape.
type queryResult struct {
	Rank    int     `json:"rank"`
	ChunkID string  `json:"chunk_id"`
	DocID   string  `json:"doc_id,omitempty"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

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

	if queryTopK > 0 {
		cfg.Retrieve.TopK = queryTopK
	}
	rerankerName := cfg.Retrieve.Reranker
	if queryReranker != "" {
		rerankerName = queryReranker
	}

	pipeline, err := buildPipeline(cfg, index, embedder, rerankerName)
	if err != nil {
		return err
	}

	result, err := pipeline.Retrieve(cmd.Context(), domain.Query{Text: queryText})
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	results := make([]queryResult, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		chunk, _ := index.Chunk(c.ChunkID)
		results = append(results, queryResult{
			Rank:    c.Rank,
			ChunkID: c.ChunkID,
			DocID:   chunk.DocID,
			Score:   c.Score,
			Text:    chunk.Text,
		})
	}

	if queryJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s  (trace %s, %s)\n\n", len(results), queryText, result.TraceID, result.Latency.Round(1e6))
	for _, r := range results {
		fmt.Printf("--- [%d] %s (doc %s, score: %.4f) ---\n", r.Rank, r.ChunkID, r.DocID, r.Score)
		text := r.Text
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		fmt.Println(text)
		fmt.Println()
	}

	return nil
}
