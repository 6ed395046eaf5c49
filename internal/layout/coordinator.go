// Package layout manages the split between the document pane and the
// conversation panel.
package layout

import (
	"context"
	"math"

	"go.uber.org/zap"
)

// Width bounds for the conversation panel, as a fraction of the total width.
const (
	MinFraction     = 0.25
	MaxFraction     = 0.45
	DefaultFraction = 0.40
	// KeyboardStep is the width change applied by one keyboard resize.
	KeyboardStep = 0.05
)

// PreferenceKey is the preference the panel width is persisted under.
const PreferenceKey = "layout.panel_width"

// WidthStore persists the panel width between sessions.
type WidthStore interface {
	Preference(ctx context.Context, key string) (float64, bool, error)
	SetPreference(ctx context.Context, key string, value float64) error
}

// ResizeEvent is delivered to subscribers whenever the split changes.
type ResizeEvent struct {
	Visible       bool
	WidthFraction float64
}

// Coordinator owns panel visibility and width. It is a two-dimension state
// machine: closed, or open with a width in [MinFraction, MaxFraction].
type Coordinator struct {
	visible  bool
	fraction float64
	dragging bool
	restored bool

	store     WidthStore
	listeners []func(ResizeEvent)
	log       *zap.Logger
}

// NewCoordinator restores the persisted width (clamped) or falls back to
// DefaultFraction. The panel starts closed.
func NewCoordinator(ctx context.Context, store WidthStore, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{fraction: DefaultFraction, store: store, log: logger}
	if store == nil {
		return c
	}
	value, ok, err := store.Preference(ctx, PreferenceKey)
	switch {
	case err != nil:
		logger.Warn("load panel width", zap.Error(err))
	case ok:
		c.fraction = Clamp(value)
		c.restored = true
	}
	return c
}

// SetDefault replaces the starting width when no preference was restored.
func (c *Coordinator) SetDefault(fraction float64) {
	if c.restored || fraction <= 0 {
		return
	}
	c.fraction = Clamp(fraction)
}

// Clamp bounds a width fraction to [MinFraction, MaxFraction].
func Clamp(fraction float64) float64 {
	if math.IsNaN(fraction) {
		return DefaultFraction
	}
	return math.Min(MaxFraction, math.Max(MinFraction, fraction))
}

// OnResize registers a resize subscriber.
func (c *Coordinator) OnResize(fn func(ResizeEvent)) {
	if fn != nil {
		c.listeners = append(c.listeners, fn)
	}
}

// Visible reports whether the panel is open.
func (c *Coordinator) Visible() bool { return c.visible }

// WidthFraction is the current (or last used) panel width.
func (c *Coordinator) WidthFraction() float64 { return c.fraction }

// Dragging reports whether a divider drag is in progress.
func (c *Coordinator) Dragging() bool { return c.dragging }

// Open reveals the panel at the retained width.
func (c *Coordinator) Open() {
	if c.visible {
		return
	}
	c.visible = true
	c.notify()
}

// Close hides the panel and ends any drag. The width is retained.
func (c *Coordinator) Close() {
	c.dragging = false
	if !c.visible {
		return
	}
	c.visible = false
	c.notify()
}

// BeginDrag starts a divider drag. It fails while the panel is closed.
func (c *Coordinator) BeginDrag() bool {
	if !c.visible {
		return false
	}
	c.dragging = true
	return true
}

// DragTo moves the divider to column pointerX of a totalWidth-wide screen.
// The panel sits to the right of the divider. Pointer positions outside the
// screen are clamped like any other.
func (c *Coordinator) DragTo(pointerX, totalWidth int) float64 {
	if !c.dragging || totalWidth <= 0 {
		return c.fraction
	}
	return c.DragToFraction(float64(totalWidth-pointerX) / float64(totalWidth))
}

// DragToFraction requests a panel width directly while dragging.
func (c *Coordinator) DragToFraction(fraction float64) float64 {
	if !c.dragging {
		return c.fraction
	}
	c.fraction = Clamp(fraction)
	return c.fraction
}

// EndDrag finishes a drag, persists the width and notifies subscribers.
func (c *Coordinator) EndDrag(ctx context.Context) error {
	if !c.dragging {
		return nil
	}
	c.dragging = false
	c.notify()
	return c.persist(ctx)
}

// Nudge resizes by delta through a full drag cycle, for keyboard control.
func (c *Coordinator) Nudge(ctx context.Context, delta float64) error {
	if !c.BeginDrag() {
		return nil
	}
	c.DragToFraction(c.fraction + delta)
	return c.EndDrag(ctx)
}

// Split divides totalWidth columns into document and panel widths. A closed
// panel gets zero columns.
func (c *Coordinator) Split(totalWidth int) (document, panel int) {
	if totalWidth <= 0 {
		return 0, 0
	}
	if !c.visible {
		return totalWidth, 0
	}
	panel = int(math.Round(float64(totalWidth) * c.fraction))
	return totalWidth - panel, panel
}

func (c *Coordinator) persist(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.SetPreference(ctx, PreferenceKey, c.fraction); err != nil {
		c.log.Warn("persist panel width", zap.Float64("fraction", c.fraction), zap.Error(err))
		return err
	}
	c.log.Debug("panel width saved", zap.Float64("fraction", c.fraction))
	return nil
}

func (c *Coordinator) notify() {
	event := ResizeEvent{Visible: c.visible, WidthFraction: c.fraction}
	for _, fn := range c.listeners {
		fn(event)
	}
}
