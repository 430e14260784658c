// cmd/vectordb is the CLI entry point built with Cobra: it constructs one
// in-process vectordb.System and drives it directly, the way the teacher's
// cmd/client talked to a remote kvcli server over HTTP except there is no
// network hop here — the library is the thing being exercised.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vectordb/internal/config"
	"vectordb/internal/domain"
	"vectordb/internal/index"
	"vectordb/internal/vectordb"
)

var dataDir string

func main() {
	root := &cobra.Command{
		Use:   "vectordb",
		Short: "In-process vector database CLI",
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "base directory for WAL/snapshot/index data")

	root.AddCommand(libraryCmd(), chunkCmd(), searchCmd(), snapshotCmd(), recoverCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildSystem() (*vectordb.System, error) {
	fs := flag.NewFlagSet("vectordb", flag.ContinueOnError)
	cfg, err := config.FromFlags(fs, nil)
	if err != nil {
		return nil, err
	}
	cfg.WALDirectory = dataDir + "/wal"
	cfg.SnapshotDirectory = dataDir + "/snapshots"
	cfg.IndexDirectory = dataDir + "/index"
	return vectordb.New(cfg)
}

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}

// ─── library ──────────────────────────────────────────────────────────────

func libraryCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "library", Short: "Manage libraries"}

	var dimension int
	var indexKind string
	var description string
	var showDefaults bool
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if showDefaults {
				tuning, err := index.DefaultTuning(domain.IndexKind(indexKind), dimension)
				if err != nil {
					return err
				}
				prettyPrint(tuning)
				return nil
			}
			sys, err := buildSystem()
			if err != nil {
				return err
			}
			defer sys.Close()
			lib, err := sys.LibraryService.CreateLibrary(args[0], dimension, domain.IndexKind(indexKind), description, nil)
			if err != nil {
				return err
			}
			prettyPrint(lib)
			return nil
		},
	}
	createCmd.Flags().IntVar(&dimension, "dimension", 0, "embedding dimension")
	createCmd.Flags().StringVar(&indexKind, "index-kind", string(domain.IndexHNSW), "index kind: LSH, HNSW, KD_TREE")
	createCmd.Flags().StringVar(&description, "description", "", "library description")
	createCmd.Flags().BoolVar(&showDefaults, "show-defaults", false, "print the index kind's default tuning instead of creating a library")

	var countOnly bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List libraries",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := buildSystem()
			if err != nil {
				return err
			}
			defer sys.Close()
			if countOnly {
				fmt.Println(sys.Libraries.Count())
				return nil
			}
			prettyPrint(sys.LibraryService.ListLibraries())
			return nil
		},
	}
	listCmd.Flags().BoolVar(&countOnly, "count-only", false, "print only the number of libraries")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a library by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := buildSystem()
			if err != nil {
				return err
			}
			defer sys.Close()
			lib, err := sys.LibraryService.GetLibrary(args[0])
			if err != nil {
				return err
			}
			prettyPrint(lib)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := buildSystem()
			if err != nil {
				return err
			}
			defer sys.Close()
			if err := sys.LibraryService.DeleteLibrary(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted library %s\n", args[0])
			return nil
		},
	}

	buildIndexCmd := &cobra.Command{
		Use:   "build-index <id>",
		Short: "Run the index finalization step for a library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := buildSystem()
			if err != nil {
				return err
			}
			defer sys.Close()
			return sys.LibraryService.BuildIndex(args[0])
		},
	}

	cmd.AddCommand(createCmd, listCmd, getCmd, deleteCmd, buildIndexCmd)
	return cmd
}

// ─── chunk ────────────────────────────────────────────────────────────────

func parseEmbedding(raw string) ([]float32, error) {
	parts := strings.Split(raw, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid embedding component %q: %w", p, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

func chunkCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "chunk", Short: "Manage chunks"}

	var embeddingRaw, documentID, content string
	var chunkIndex int
	putCmd := &cobra.Command{
		Use:   "put <library-id>",
		Short: "Create a chunk in a library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			embedding, err := parseEmbedding(embeddingRaw)
			if err != nil {
				return err
			}
			sys, err := buildSystem()
			if err != nil {
				return err
			}
			defer sys.Close()
			c, err := sys.ChunkService.CreateChunk(args[0], content, embedding, documentID, chunkIndex, nil)
			if err != nil {
				return err
			}
			prettyPrint(c)
			return nil
		},
	}
	putCmd.Flags().StringVar(&content, "content", "", "chunk content")
	putCmd.Flags().StringVar(&embeddingRaw, "embedding", "", "comma-separated embedding vector")
	putCmd.Flags().StringVar(&documentID, "document-id", "", "owning document id")
	putCmd.Flags().IntVar(&chunkIndex, "chunk-index", 0, "position within the document")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a chunk by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := buildSystem()
			if err != nil {
				return err
			}
			defer sys.Close()
			c, err := sys.ChunkService.GetChunk(args[0])
			if err != nil {
				return err
			}
			prettyPrint(c)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a chunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := buildSystem()
			if err != nil {
				return err
			}
			defer sys.Close()
			if err := sys.ChunkService.DeleteChunk(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted chunk %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(putCmd, getCmd, deleteCmd)
	return cmd
}

// ─── search ───────────────────────────────────────────────────────────────

func searchCmd() *cobra.Command {
	var embeddingRaw string
	var k int
	cmd := &cobra.Command{
		Use:   "search <library-id>",
		Short: "Run a nearest-neighbor search against a library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			embedding, err := parseEmbedding(embeddingRaw)
			if err != nil {
				return err
			}
			sys, err := buildSystem()
			if err != nil {
				return err
			}
			defer sys.Close()
			results, err := sys.SearchService.Search(args[0], embedding, k, nil)
			if err != nil {
				return err
			}
			prettyPrint(results)
			return nil
		},
	}
	cmd.Flags().StringVar(&embeddingRaw, "embedding", "", "comma-separated query vector")
	cmd.Flags().IntVar(&k, "k", 10, "number of results to return")
	return cmd
}

// ─── snapshot / recover ─────────────────────────────────────────────────

func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "snapshot", Short: "Snapshot and backup commands"}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a snapshot now",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := buildSystem()
			if err != nil {
				return err
			}
			defer sys.Close()
			if sys.Recovery == nil {
				return fmt.Errorf("persistence is disabled")
			}
			meta, err := sys.Recovery.CreateBackup(sys.Config.SnapshotRetain)
			if err != nil {
				return err
			}
			prettyPrint(meta)
			return nil
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Report consistency statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := buildSystem()
			if err != nil {
				return err
			}
			defer sys.Close()
			if sys.Recovery == nil {
				return fmt.Errorf("persistence is disabled")
			}
			prettyPrint(sys.Recovery.VerifyConsistency())
			return nil
		},
	}

	cmd.AddCommand(createCmd, verifyCmd)
	return cmd
}

func recoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Recover state from the latest snapshot and WAL tail",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := buildSystem()
			if err != nil {
				return err
			}
			defer sys.Close()
			if sys.Recovery == nil {
				return fmt.Errorf("persistence is disabled")
			}
			report, err := sys.Recovery.RecoverSystem()
			if err != nil {
				return err
			}
			prettyPrint(report)
			return nil
		},
	}
}
