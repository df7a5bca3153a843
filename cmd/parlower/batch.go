package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"parlower/internal/pipeline"
)

var batchCmd = &cobra.Command{
	Use:   "batch <module.mp> [module.mp ...]",
	Short: "Lower multiple independent modules concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().Int("jobs", 0, "maximum concurrent lowerings (0 = GOMAXPROCS)")
	batchCmd.Flags().String("out-dir", "", "directory to write each lowered module into, named by input basename")
}

type batchResult struct {
	path string
	err  error
}

// runBatch lowers every input module independently and concurrently: the
// pipeline is single-threaded per module, but unrelated modules share no
// mutable state, so an errgroup fans them out across them.
func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	jobs, _ := cmd.Flags().GetInt("jobs")
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	outDir, _ := cmd.Flags().GetString("out-dir")
	useColor := wantColor(cmd)

	results := make([]batchResult, len(args))

	g, gctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(min(jobs, len(args)))

	for i, path := range args {
		g.Go(func(i int, path string) func() error {
			return func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}

				m, _, err := loadModuleFile(path)
				if err != nil {
					results[i] = batchResult{path: path, err: err}
					return nil
				}

				sink := logSink{color: useColor, prefix: filepath.Base(path)}
				if _, err := pipeline.Run(pipeline.Request{Module: m, Config: cfg, Progress: sink}); err != nil {
					results[i] = batchResult{path: path, err: err}
					return nil
				}

				if outDir != "" {
					if err := writeModuleFile(filepath.Join(outDir, filepath.Base(path)), m); err != nil {
						results[i] = batchResult{path: path, err: err}
						return nil
					}
				}

				results[i] = batchResult{path: path}
				return nil
			}
		}(i, path))
	}

	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.path, r.err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d modules failed to lower", failed, len(results))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "lowered %d modules\n", len(results))
	return nil
}
