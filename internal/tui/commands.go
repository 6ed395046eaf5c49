package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/lumen/internal/document"
	"github.com/csheth/lumen/internal/simplify"
	"github.com/csheth/lumen/internal/threads"
)

func simplifyJob(r Requester, mode simplify.Mode, text string, request int) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		var res simplify.Result
		if mode == simplify.ModeELI5 {
			res = r.ELI5(ctx, text)
		} else {
			res = r.Explain(ctx, text)
		}
		return simplifyResultMsg{request: request, mode: mode, result: res}, nil
	}
}

func followupJob(r Requester, in simplify.FollowupInput, generation uint64) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		res := r.Followup(ctx, in)
		return followupResultMsg{generation: generation, result: res}, nil
	}
}

func lookupThreadJob(store ThreadStore, docID, anchor string, request int) jobRunner {
	return func(context.Context) (tea.Msg, error) {
		thread, found, err := store.Find(docID, anchor)
		return threadLookupMsg{request: request, thread: thread, found: found, err: err}, err
	}
}

func saveThreadJob(store ThreadStore, thread threads.Thread) jobRunner {
	return func(context.Context) (tea.Msg, error) {
		err := store.Save(thread)
		return threadSavedMsg{turns: len(thread.Turns), err: err}, err
	}
}

// locationsJob loads the cached pagination index and rebuilds it when the
// document no longer matches.
func locationsJob(lib Library, doc *document.Document, pageSize int) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		if lib != nil {
			data, err := lib.Locations(ctx, doc.ID)
			if err == nil && len(data) > 0 {
				if locs, err := document.DecodeLocations(data); err == nil && locs.Matches(doc, pageSize) {
					return locationsReadyMsg{locations: locs}, nil
				}
			}
		}
		locs := document.BuildLocations(doc, pageSize)
		if lib == nil {
			return locationsReadyMsg{locations: locs, rebuilt: true}, nil
		}
		data, err := locs.Encode()
		if err == nil {
			err = lib.SaveLocations(ctx, doc.ID, data)
		}
		return locationsReadyMsg{locations: locs, rebuilt: true, err: err}, err
	}
}

func progressJob(lib Library, bookID string, pos document.Position, progress float64) jobRunner {
	return func(ctx context.Context) (tea.Msg, error) {
		err := saveProgress(ctx, lib, bookID, pos, progress)
		return progressSavedMsg{position: pos, err: err}, err
	}
}

func saveProgress(ctx context.Context, lib Library, bookID string, pos document.Position, progress float64) error {
	if lib == nil {
		return nil
	}
	token := pos.String()
	return errors.Join(
		lib.SavePosition(ctx, bookID, token),
		lib.UpdateProgress(ctx, bookID, progress, token),
	)
}
