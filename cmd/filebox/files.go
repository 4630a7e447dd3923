package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cuemby/filebox/pkg/codec"
	"github.com/cuemby/filebox/pkg/log"
	"github.com/cuemby/filebox/pkg/storage"
	"github.com/cuemby/filebox/pkg/types"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var putCmd = &cobra.Command{
	Use:   "put FILE...",
	Short: "Compress and store files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  withApp(runPut),
}

var getCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Write the original contents of a stored file",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runGet),
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored files",
	Args:  cobra.NoArgs,
	RunE:  withApp(runList),
}

var rmCmd = &cobra.Command{
	Use:   "rm ID...",
	Short: "Remove stored files",
	Long: `Remove stored files. Every document that references a removed file
has the reference dropped in the same transaction.`,
	Args: cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		for _, id := range args {
			if err := a.repo.Remove(ctx, id); err != nil {
				return fmt.Errorf("failed to remove %s: %w", id, err)
			}
			fmt.Printf("✓ Removed %s\n", id)
		}
		return nil
	}),
}

var renameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Change the name of a stored file",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		e, err := a.repo.Rename(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to rename %s: %w", args[0], err)
		}
		fmt.Printf("✓ Renamed %s to %s\n", e.ID, e.Name)
		return nil
	}),
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show storage usage",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		u, err := a.repo.StorageUsage(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Files:       %d\n", u.Files)
		fmt.Printf("Original:    %s\n", formatBytes(u.TotalOriginalBytes))
		fmt.Printf("Compressed:  %s\n", formatBytes(u.TotalCompressedBytes))
		if u.TotalOriginalBytes > 0 {
			fmt.Printf("Ratio:       %.1f%%\n", u.Ratio()*100)
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(usageCmd)

	putCmd.Flags().String("mime", "", "MIME type for every file (detected when empty)")
	putCmd.Flags().Int("parallel", 4, "Files to read and compress at once")

	getCmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")

	lsCmd.Flags().String("mime", "", "Only files with this MIME type")
	lsCmd.Flags().String("name", "", "Only files with exactly this name")
	lsCmd.Flags().Int("recent", 0, "Only the N most recently created files")
}

func runPut(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
	mimeType, _ := cmd.Flags().GetString("mime")
	parallel, _ := cmd.Flags().GetInt("parallel")

	entries, err := prepareEntries(ctx, args, mimeType, parallel)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if err := a.repo.Put(ctx, e); err != nil {
			return fmt.Errorf("failed to store %s: %w", e.Name, err)
		}
		logger := log.WithFileID(e.ID)
		logger.Debug().
			Str("name", e.Name).
			Str("encoding", string(e.Encoding)).
			Msg("Stored file")
		fmt.Printf("✓ Stored %s (ID: %s, %s → %s)\n",
			e.Name, e.ID, formatBytes(e.OriginalSize), formatBytes(e.CompressedSize))
	}
	return nil
}

// prepareEntries reads and compresses paths concurrently, keeping their order
func prepareEntries(ctx context.Context, paths []string, mimeType string, parallel int) ([]*types.FileEntry, error) {
	entries := make([]*types.FileEntry, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			e, err := codec.NewEntry(filepath.Base(path), mimeType, data, time.Now())
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", path, err)
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func runGet(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
	output, _ := cmd.Flags().GetString("output")

	e, ok, err := a.repo.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: file %s", storage.ErrNotFound, args[0])
	}

	data, err := codec.Open(e)
	if err != nil {
		return err
	}

	if output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	fmt.Fprintf(os.Stderr, "✓ Wrote %s (%s)\n", output, formatBytes(int64(len(data))))
	return nil
}

func runList(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
	mimeType, _ := cmd.Flags().GetString("mime")
	name, _ := cmd.Flags().GetString("name")
	recent, _ := cmd.Flags().GetInt("recent")

	var (
		entries []*types.FileEntry
		err     error
	)
	switch {
	case name != "":
		entries, err = a.repo.FindByName(ctx, name)
	case mimeType != "":
		entries, err = a.repo.ListByMimeType(ctx, mimeType)
	case recent > 0:
		entries, err = a.repo.ListRecent(ctx, recent)
	default:
		entries, err = a.repo.List(ctx)
		slices.SortFunc(entries, func(x, y *types.FileEntry) int {
			return strings.Compare(x.Name, y.Name)
		})
	}
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No files")
		return nil
	}
	printEntries(entries)
	return nil
}

func printEntries(entries []*types.FileEntry) {
	fmt.Printf("%-36s  %-24s  %-26s  %10s  %10s  %-20s  %s\n",
		"ID", "NAME", "MIME TYPE", "SIZE", "STORED", "CREATED", "LINKS")
	for _, e := range entries {
		fmt.Printf("%-36s  %-24s  %-26s  %10s  %10s  %-20s  %d\n",
			e.ID,
			truncate(e.Name, 24),
			truncate(e.MimeType, 26),
			formatBytes(e.OriginalSize),
			formatBytes(e.CompressedSize),
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			len(e.AssociatedIDs),
		)
	}
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
