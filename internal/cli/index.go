package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"rageval/config"
	"rageval/internal/adapter/corpus"
	"rageval/internal/adapter/store"
	"rageval/internal/usecase"
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Build the similarity index from a chunk corpus",
	Long: `Load every chunk file under the given directory, embed chunks that
arrived without vectors, and write the index snapshot to
.rageval/index.db within the root directory.

Examples:
  rageval index .                 # Index corpus in current directory
  rageval index /path/to/corpus   # Index a specific corpus directory`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	cfg := GetConfig()

	if err := config.EnsureDir(GetRootDir()); err != nil {
		return fmt.Errorf("failed to create .rageval directory: %w", err)
	}

	dbPath := config.SnapshotPath(GetRootDir())
	snapshot, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer snapshot.Close()

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}

	source := corpus.NewSource(path, cfg.Index.Includes, cfg.Index.Excludes)
	indexUC := usecase.NewIndexUseCase(source, embedder, snapshot, GetLogger())

	fmt.Printf("Scanning %s...\n", path)

	var bar *progressbar.ProgressBar
	var barMu sync.Mutex

	progress := func(done, total int) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}
		bar.Set(done)
	}

	result, err := indexUC.Index(cmd.Context(), progress)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("\nIndexing complete:\n")
	fmt.Printf("  Chunks indexed: %d\n", result.Chunks)
	fmt.Printf("  Embedded:       %d\n", result.Embedded)
	fmt.Printf("  Dimension:      %d\n", result.Dimension)
	if result.ProviderCalls > 0 {
		fmt.Printf("  Provider calls: %d\n", result.ProviderCalls)
	}
	fmt.Printf("\nSnapshot stored at: %s\n", dbPath)

	return nil
}
