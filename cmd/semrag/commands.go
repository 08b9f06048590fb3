package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/semrag/internal/evaluation"
	"github.com/dshills/semrag/internal/ingest"
	"github.com/dshills/semrag/internal/mcp"
	"github.com/dshills/semrag/internal/rag"
	"github.com/dshills/semrag/internal/searcher"
	"github.com/dshills/semrag/internal/storage"
)

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(a *app) error {
				srv, err := mcp.NewServer(mcp.Deps{
					Storage:  a.store,
					Index:    a.index,
					Ingester: a.ingester,
					Searcher: a.searcher,
					Pipeline: a.pipeline,
					Ingest:   a.cfg.IngestOptions(false),
					Logger:   a.log,
				})
				if err != nil {
					return err
				}
				err = srv.Serve(cmd.Context())
				a.log.Info("Server stopped")
				return err
			})
		},
	}
}

func (c *cli) ingestCmd() *cobra.Command {
	var (
		force    bool
		language string
	)

	cmd := &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Chunk, embed and store every document below a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, func(a *app) error {
				opts := a.cfg.IngestOptions(force)
				if language != "" {
					opts.Language = language
				}
				stats, err := a.ingester.IngestFolder(cmd.Context(), dir, opts)
				if err != nil {
					return err
				}
				printStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-ingest documents whose content is unchanged")
	cmd.Flags().StringVar(&language, "language", "", "BCP 47 language tag for sentence segmentation")
	return cmd
}

func (c *cli) uploadCmd() *cobra.Command {
	var (
		texts    []string
		language string
	)

	cmd := &cobra.Command{
		Use:   "upload [file...]",
		Short: "Ingest raw texts from files, stdin (-) or --text",
		RunE: func(cmd *cobra.Command, args []string) error {
			all := append([]string(nil), texts...)
			for _, name := range args {
				text, err := readInput(cmd.InOrStdin(), name)
				if err != nil {
					return err
				}
				all = append(all, text)
			}
			if len(all) == 0 {
				return fmt.Errorf("nothing to upload: pass files, - for stdin, or --text")
			}

			return c.run(cmd, func(a *app) error {
				stats, err := a.pipeline.Upload(cmd.Context(), all, language)
				if err != nil {
					return err
				}
				printStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&texts, "text", nil, "Text to upload (repeatable)")
	cmd.Flags().StringVar(&language, "language", "", "BCP 47 language tag for sentence segmentation")
	return cmd
}

func (c *cli) askCmd() *cobra.Command {
	var (
		topK    int
		sources []string
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the ingested documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(a *app) error {
				answer, err := a.pipeline.Generate(cmd.Context(), rag.Query{
					Text:    strings.Join(args, " "),
					TopK:    topK,
					Sources: sources,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, answer.Text)
				if len(answer.Sources) > 0 {
					fmt.Fprintln(out)
					fmt.Fprintln(out, "Sources:")
					for i, src := range answer.Sources {
						fmt.Fprintf(out, "  [%d] %s\n", i+1, src)
					}
				}
				a.log.Debug("Answered", "model", answer.Model, "duration", answer.Duration.Round(time.Millisecond))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Chunks used as context (default from SEMRAG_RETRIEVAL__TOP_K)")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "Restrict retrieval to these sources")
	return cmd
}

func (c *cli) searchCmd() *cobra.Command {
	var (
		limit        int
		mode         string
		sources      []string
		minRelevance float64
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search stored chunks without generating an answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			searchMode, err := searcher.ParseMode(mode)
			if err != nil {
				return err
			}
			return c.run(cmd, func(a *app) error {
				req := searcher.SearchRequest{
					Query: strings.Join(args, " "),
					Limit: limit,
					Mode:  searchMode,
				}
				if len(sources) > 0 || minRelevance > 0 {
					req.Filters = &storage.SearchFilters{Sources: sources, MinRelevance: minRelevance}
				}

				resp, err := a.searcher.Search(cmd.Context(), req)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, r := range resp.Results {
					fmt.Fprintf(out, "%d. %s #%d (%.4f)\n   %s\n", r.Rank, r.Source, r.Position, r.RelevanceScore, r.Content)
				}
				fmt.Fprintf(out, "%d result(s), %s, %s\n",
					resp.TotalResults, resp.SearchMode, resp.Duration.Round(time.Millisecond))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", searcher.DefaultLimit, "Maximum number of results (1-100)")
	cmd.Flags().StringVar(&mode, "mode", string(searcher.SearchModeHybrid), "Search mode: hybrid, vector or keyword")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "Restrict results to these sources")
	cmd.Flags().Float64Var(&minRelevance, "min-relevance", 0, "Minimum relevance score (0-1)")
	return cmd
}

func (c *cli) evalCmd() *cobra.Command {
	var (
		output string
		topK   int
	)

	cmd := &cobra.Command{
		Use:   "eval <dataset.jsonl>",
		Short: "Answer every question of a dataset and write the results for RAG metric tools",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := evaluation.LoadDataset(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".results.jsonl"
			}

			return c.run(cmd, func(a *app) error {
				runner := evaluation.NewRunner(a.pipeline, a.cfg.EvaluationOptions(topK), a.log)
				report, err := runner.Run(cmd.Context(), items)
				if err != nil {
					return err
				}
				if err := evaluation.SaveRecords(output, report.Records); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "answered %d/%d, failed %d, average latency %s, total %s\nresults written to %s\n",
					report.Answered, len(items), report.Failed,
					report.AverageLatency.Round(time.Millisecond), report.Duration.Round(time.Millisecond), output)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Results file (default <dataset>.results.jsonl)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Chunks used as context per question")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store statistics and index health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(a *app) error {
				status, err := a.store.GetStatus(cmd.Context())
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "Database:\t%s\n", a.cfg.DatabasePath())
				fmt.Fprintf(w, "Vector index:\t%s\n", a.cfg.VectorIndex.Backend)
				fmt.Fprintf(w, "Documents:\t%d\n", status.DocumentsCount)
				fmt.Fprintf(w, "Chunks:\t%d\n", status.ChunksCount)
				fmt.Fprintf(w, "Embeddings:\t%d\n", status.EmbeddingsCount)
				if a.index != nil {
					if n, err := a.index.Count(cmd.Context()); err == nil {
						fmt.Fprintf(w, "Indexed vectors:\t%d\n", n)
					}
				}
				fmt.Fprintf(w, "Size:\t%.2f MB\n", status.IndexSizeMB)
				if !status.LastIngestedAt.IsZero() {
					fmt.Fprintf(w, "Last ingest:\t%s\n", status.LastIngestedAt.Format(time.RFC3339))
				}
				if run := status.LastRun; run != nil {
					fmt.Fprintf(w, "Last run:\t%s: %d indexed, %d skipped, %d chunks, %d errors in %s\n",
						run.Root, run.DocumentsIndexed, run.DocumentsSkipped, run.ChunksCreated, run.ErrorCount,
						run.Duration.Round(time.Millisecond))
				}
				fmt.Fprintf(w, "Full-text index:\t%v\n", status.Health.FTSIndexesBuilt)
				fmt.Fprintf(w, "Vector extension:\t%v\n", status.Health.VectorExtension)
				return w.Flush()
			})
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		// Skips config loading
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "semrag %s\n", version)
			fmt.Fprintf(out, "Build Time: %s\n", buildTime)
			fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
			fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
			fmt.Fprintf(out, "Vector Extension: %v\n", storage.VectorExtensionAvailable)
			fmt.Fprintf(out, "MCP Server: %s %s\n", mcp.ServerName, mcp.ServerVersion)
		},
	}
}

// printStats writes an ingest summary
func printStats(w io.Writer, stats *ingest.Statistics) {
	fmt.Fprintf(w, "indexed %d, skipped %d, too short %d, failed %d, chunks %d in %s\n",
		stats.DocumentsIndexed, stats.DocumentsSkipped, stats.DocumentsTooShort, stats.DocumentsFailed,
		stats.ChunksCreated, stats.Duration.Round(time.Millisecond))
	for _, msg := range stats.ErrorMessages {
		fmt.Fprintf(w, "  error: %s\n", msg)
	}
}

// readInput reads a file, or stdin for "-"
func readInput(stdin io.Reader, name string) (string, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return string(data), nil
}
