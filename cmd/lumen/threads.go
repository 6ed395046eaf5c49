package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/csheth/lumen/internal/threads"
)

var threadsDelete int

var threadsCmd = &cobra.Command{
	Use:   "threads [book-id]",
	Short: "List saved conversation threads",
	Long: `threads lists the conversations saved with s in the reader, newest first.
Pass a book id (see lumen recent) to show one book only, and --delete N to
remove the Nth thread of the listing.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runThreads,
}

func init() {
	threadsCmd.Flags().IntVar(&threadsDelete, "delete", 0, "delete the thread at this position in the listing")
}

func runThreads(cmd *cobra.Command, args []string) error {
	store := threads.NewStore(cfg.Storage.ThreadsFile)
	docID := ""
	if len(args) > 0 {
		docID = args[0]
	}
	list, err := store.List(docID)
	if err != nil {
		return fmt.Errorf("read threads: %w", err)
	}
	out := cmd.OutOrStdout()

	if threadsDelete != 0 {
		return deleteThread(out, store, list, threadsDelete)
	}
	if len(list) == 0 {
		fmt.Fprintf(out, "No saved threads in %s.\n", store.Path())
		return nil
	}
	fmt.Fprintln(out, renderThreads(list, time.Now()))
	return nil
}

func deleteThread(out io.Writer, store *threads.Store, list []threads.Thread, n int) error {
	if n < 1 || n > len(list) {
		return fmt.Errorf("no thread %d; the listing has %d", n, len(list))
	}
	t := list[n-1]
	removed, err := store.Delete(t.DocumentID, t.AnchorText)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	if !removed {
		return fmt.Errorf("thread %d was already removed", n)
	}
	fmt.Fprintf(out, "deleted thread on %q\n", clip(t.AnchorText, 60))
	return nil
}

func renderThreads(list []threads.Thread, now time.Time) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "Book", "Passage", "Turns", "Saved")
	for i, th := range list {
		t.Row(
			strconv.Itoa(i+1),
			clip(th.DocumentTitle, 30),
			clip(th.AnchorText, 48),
			strconv.Itoa(len(th.Turns)),
			humanizeAge(now.Sub(th.SavedAt)),
		)
	}
	return t.String()
}

func clip(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
