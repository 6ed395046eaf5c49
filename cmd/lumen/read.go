package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/csheth/lumen/internal/conversation"
	"github.com/csheth/lumen/internal/document"
	"github.com/csheth/lumen/internal/library"
	"github.com/csheth/lumen/internal/simplify"
	"github.com/csheth/lumen/internal/threads"
	"github.com/csheth/lumen/internal/tui"
)

var readCmd = &cobra.Command{
	Use:   "read <path-or-url>",
	Short: "Open an EPUB or PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runRead,
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	lib, err := library.Open(cfg.Storage.Database, logger)
	if err != nil {
		return err
	}
	defer lib.Close()

	source, err := pickSource(ctx, lib, args)
	if err != nil {
		return err
	}
	cache, err := document.NewCache(cfg.Storage.CacheDir, nil, logger)
	if err != nil {
		return fmt.Errorf("document cache: %w", err)
	}
	doc, err := document.Open(ctx, source, cache)
	if err != nil {
		return err
	}
	logger.Info("document opened",
		zap.String("id", doc.ID),
		zap.String("type", string(doc.Type)),
		zap.Int("chapters", len(doc.Chapters)),
	)

	if err := lib.Upsert(ctx, library.Book{
		ID:       doc.ID,
		Title:    doc.Title,
		Author:   doc.Author,
		CoverURL: doc.CoverURL,
		FileType: string(doc.Type),
		FilePath: doc.Source,
	}); err != nil {
		logger.Warn("record book", zap.Error(err))
	}

	start := document.Position{}
	if token, err := lib.Position(ctx, doc.ID); err == nil {
		if pos, err := document.ParsePosition(token); err == nil {
			start = pos
		}
	}

	model := tui.New(tui.Config{
		Document: doc,
		Requester: simplify.New(simplify.Config{
			Endpoint:           cfg.Backend.Endpoint,
			DictionaryEndpoint: cfg.Backend.DictionaryURL,
			Timeout:            cfg.Backend.Timeout,
			Logger:             logger,
		}),
		Library: lib,
		Threads: threads.NewStore(cfg.Storage.ThreadsFile),
		Resolver: &conversation.Resolver{
			ChapterBudget: cfg.Reader.ChapterBudget,
			BookBudget:    cfg.Reader.BookBudget,
			Policy:        conversation.PolicyByName(cfg.Reader.ExcerptPolicy),
		},
		Start:           start,
		SingleWordDelay: cfg.Reader.SingleWordDelay,
		MultiWordDelay:  cfg.Reader.MultiWordDelay,
		PageSize:        cfg.Reader.PageSize,
		PanelWidth:      cfg.Layout.DefaultWidth,
		Logger:          logger,
	})

	opts := []tea.ProgramOption{tea.WithMouseCellMotion(), tea.WithContext(ctx)}
	if !noAltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if _, err := tea.NewProgram(model, opts...).Run(); err != nil {
		return fmt.Errorf("program error: %w", err)
	}
	return nil
}

// pickSource returns the argument, or the most recently opened book.
func pickSource(ctx context.Context, lib *library.Library, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	books, err := lib.Recent(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(books) == 0 || books[0].FilePath == "" {
		return "", errors.New("no document given and no recent books; run lumen read <path-or-url>")
	}
	return books[0].FilePath, nil
}
