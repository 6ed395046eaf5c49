package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/csheth/lumen/internal/document"
	"github.com/csheth/lumen/internal/library"
)

var (
	recentLimit  int
	recentRemove string
)

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently opened books",
	Args:  cobra.NoArgs,
	RunE:  runRecent,
}

func init() {
	recentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 10, "number of books to list")
	recentCmd.Flags().StringVar(&recentRemove, "remove", "", "forget the book with this id")
}

func runRecent(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	lib, err := library.Open(cfg.Storage.Database, logger)
	if err != nil {
		return err
	}
	defer lib.Close()

	if recentRemove != "" {
		book, err := lib.Book(ctx, recentRemove)
		if errors.Is(err, library.ErrNotFound) {
			return fmt.Errorf("no book with id %s", recentRemove)
		}
		if err != nil {
			return err
		}
		if err := lib.Remove(ctx, book.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s (%s)\n", book.Title, book.ID)
		if document.IsRemote(book.FilePath) {
			forgetDownload(book.FilePath)
		}
		return nil
	}

	books, err := lib.Recent(ctx, recentLimit)
	if err != nil {
		return err
	}
	if len(books) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No books opened yet.")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderBooks(books, time.Now()))
	return nil
}

// forgetDownload drops the cached copy of a remote book. Failures only log;
// the library entry is already gone.
func forgetDownload(url string) {
	cache, err := document.NewCache(cfg.Storage.CacheDir, nil, logger)
	if err != nil {
		logger.Warn("open document cache", zap.Error(err))
		return
	}
	if _, err := cache.Forget(url); err != nil {
		logger.Warn("forget cached download", zap.String("url", url), zap.Error(err))
	}
}

func renderBooks(books []library.Book, now time.Time) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "Title", "Author", "Progress", "Opened", "Type")
	for _, b := range books {
		t.Row(
			b.ID,
			b.Title,
			b.Author,
			fmt.Sprintf("%.0f%%", b.Progress),
			humanizeAge(now.Sub(b.LastOpened)),
			b.FileType,
		)
	}
	return t.String()
}

func humanizeAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
