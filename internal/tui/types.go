package tui

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/csheth/lumen/internal/conversation"
	"github.com/csheth/lumen/internal/document"
	"github.com/csheth/lumen/internal/layout"
	"github.com/csheth/lumen/internal/selection"
	"github.com/csheth/lumen/internal/simplify"
	"github.com/csheth/lumen/internal/threads"
)

// Config wires the reader to its collaborators. Only Document and Requester
// are required.
type Config struct {
	Document  *document.Document
	Requester Requester
	Library   Library
	Threads   ThreadStore
	Resolver  *conversation.Resolver
	Start     document.Position

	SingleWordDelay time.Duration
	MultiWordDelay  time.Duration
	PageSize        int
	// PanelWidth is the starting panel fraction when none was saved.
	PanelWidth float64

	Logger *zap.Logger
}

// Requester issues explain, eli5 and follow-up requests. Implementations
// never fail; failures come back as fallback text.
type Requester interface {
	Explain(ctx context.Context, text string) simplify.Result
	ELI5(ctx context.Context, text string) simplify.Result
	Followup(ctx context.Context, in simplify.FollowupInput) simplify.Result
}

// Library persists reading state and preferences.
type Library interface {
	layout.WidthStore
	UpdateProgress(ctx context.Context, id string, progress float64, position string) error
	SavePosition(ctx context.Context, bookID, position string) error
	SaveLocations(ctx context.Context, bookID string, data []byte) error
	Locations(ctx context.Context, bookID string) ([]byte, error)
}

// ThreadStore saves and finds conversation threads by anchor.
type ThreadStore interface {
	Save(t threads.Thread) error
	Find(docID, anchor string) (threads.Thread, bool, error)
}

type focusArea int

const (
	focusDocument focusArea = iota
	focusComposer
)

type selectMode int

const (
	selectNone selectMode = iota
	selectVisual
	selectMouse
)

const (
	headerHeight      = 1
	footerHeight      = 2
	minDocumentWidth  = 20
	minPaneHeight     = 3
	popupPreviewLimit = 160
	followupCharLimit = 500
)

// popupState is the selection popup shown once a selection stabilizes.
type popupState struct {
	visible   bool
	selection selection.Selection
	request   int
	loading   bool
	mode      simplify.Mode
	result    *simplify.Result
	saved     *threads.Thread
}

type simplifyResultMsg struct {
	request int
	mode    simplify.Mode
	result  simplify.Result
}

type followupResultMsg struct {
	generation uint64
	result     simplify.Result
}

type threadLookupMsg struct {
	request int
	thread  threads.Thread
	found   bool
	err     error
}

type threadSavedMsg struct {
	turns int
	err   error
}

type locationsReadyMsg struct {
	locations document.Locations
	rebuilt   bool
	err       error
}

type progressSavedMsg struct {
	position document.Position
	err      error
}
