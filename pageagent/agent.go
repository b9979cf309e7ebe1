// Package pageagent is the per-document hop agent: it renders markers for
// the hops of the current URL, keeps them in sync as the page mutates or
// navigates, and hosts the create-hop overlay.
//
// All agent state lives on one event-loop goroutine. Host callbacks
// (listeners, mutation observer, history wrap, store notifications) only
// post work to that loop or arm its coalescing timer; they never block on
// it.
package pageagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	htmltomd "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/hazyhaar/kango/command"
	"github.com/hazyhaar/kango/dom"
	"github.com/hazyhaar/kango/hops"
)

var (
	// ErrAlreadyInjected is returned by Inject when the document already
	// hosts an agent.
	ErrAlreadyInjected = errors.New("pageagent: already injected")
	// ErrInvalidRequest reports a create request that cannot be honoured
	// (no captured element, blank title, unknown color, no locator).
	ErrInvalidRequest = errors.New("pageagent: invalid request")
	// ErrClosed is returned by operations on a closed agent.
	ErrClosed = errors.New("pageagent: closed")
)

const (
	agentFlag   = "kango:agent"
	historyFlag = "kango:history"
)

// Config configures an agent.
type Config struct {
	Doc   *dom.Document
	Store *hops.Store
	// Emit carries page-originated commands (OpenSidebar, HideMenu) to the
	// dispatcher. It is called on the agent loop and must not block on the
	// agent. Nil drops them.
	Emit func(command.Command)
	// Debounce is the coalescing window for re-identification. Default: 750ms.
	Debounce time.Duration
	// InitialDelay is the wait after DOMContentLoaded before the first load
	// of a document that was still loading at injection. Default: 1s.
	InitialDelay time.Duration
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = 750 * time.Millisecond
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Emit == nil {
		c.Emit = func(command.Command) {}
	}
}

// Stats are point-in-time counters.
type Stats struct {
	Triggers   int64 `json:"triggers"`
	Reconciles int64 `json:"reconciles"`
	Markers    int64 `json:"markers_inserted"`
}

// Agent manages hop markers in one document.
type Agent struct {
	doc    *dom.Document
	store  *hops.Store
	emit   func(command.Command)
	logger *slog.Logger

	debounce     time.Duration
	initialDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	exited chan struct{}

	tasks    chan func()
	triggerC chan struct{}
	loadedC  chan struct{}

	// loop-owned state
	currentURL string
	clicked    *html.Node
	overlay    *overlay
	timer      *time.Timer
	timerC     <-chan time.Time
	initTimer  *time.Timer
	initC      <-chan time.Time

	sanitizer *bluemonday.Policy
	markdown  *htmltomd.Converter

	teardown  []func()
	closeOnce sync.Once

	triggers   atomic.Int64
	reconciles atomic.Int64
	inserted   atomic.Int64
}

// Inject starts an agent on cfg.Doc. A document hosts at most one agent:
// a second Inject returns ErrAlreadyInjected and installs nothing.
func Inject(cfg Config) (*Agent, error) {
	if cfg.Doc == nil || cfg.Store == nil {
		return nil, fmt.Errorf("pageagent: inject: document and store are required")
	}
	cfg.defaults()
	if !cfg.Doc.MarkOnce(agentFlag) {
		return nil, ErrAlreadyInjected
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Agent{
		doc:          cfg.Doc,
		store:        cfg.Store,
		emit:         cfg.Emit,
		logger:       cfg.Logger,
		debounce:     cfg.Debounce,
		initialDelay: cfg.InitialDelay,
		ctx:          ctx,
		cancel:       cancel,
		exited:       make(chan struct{}),
		tasks:        make(chan func(), 64),
		triggerC:     make(chan struct{}, 1),
		loadedC:      make(chan struct{}, 1),
		currentURL:   cfg.Doc.URL(),
		sanitizer:    bluemonday.StrictPolicy(),
		markdown: htmltomd.NewConverter(
			htmltomd.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}

	a.install()
	go a.loop()

	if a.doc.ReadyState() == dom.StateLoading {
		a.logger.Debug("pageagent: waiting for DOMContentLoaded", "url", a.currentURL)
	} else {
		a.post(func() { a.reconcile(a.ctx) })
	}
	return a, nil
}

// Close stops the loop and releases every listener, the mutation observer,
// the store subscription and any open overlay. It is idempotent.
func (a *Agent) Close() {
	a.closeOnce.Do(func() {
		a.cancel()
		<-a.exited
		if a.overlay != nil {
			a.overlay.dispose()
		}
		for i := len(a.teardown) - 1; i >= 0; i-- {
			a.teardown[i]()
		}
		a.teardown = nil
		a.logger.Debug("pageagent: closed", "url", a.currentURL)
	})
}

// Stats returns the agent counters.
func (a *Agent) Stats() Stats {
	return Stats{
		Triggers:   a.triggers.Load(),
		Reconciles: a.reconciles.Load(),
		Markers:    a.inserted.Load(),
	}
}

func (a *Agent) loop() {
	defer close(a.exited)
	for {
		select {
		case <-a.ctx.Done():
			if a.timer != nil {
				a.timer.Stop()
			}
			if a.initTimer != nil {
				a.initTimer.Stop()
			}
			return

		case fn := <-a.tasks:
			fn()

		case <-a.loadedC:
			if a.initTimer == nil {
				a.initTimer = time.NewTimer(a.initialDelay)
				a.initC = a.initTimer.C
			}

		case <-a.initC:
			a.initC = nil
			a.reconcile(a.ctx)

		case <-a.triggerC:
			// Only the first trigger of a window arms the timer.
			if a.timerC == nil {
				a.timer = time.NewTimer(a.debounce)
				a.timerC = a.timer.C
			}

		case <-a.timerC:
			a.timer = nil
			a.timerC = nil
			a.reconcile(a.ctx)
		}
	}
}

// post queues fn on the loop. Work posted after Close is dropped.
func (a *Agent) post(fn func()) {
	select {
	case a.tasks <- fn:
	case <-a.ctx.Done():
	}
}

// do runs fn on the loop and waits for it. It must not be called from the
// loop itself.
func (a *Agent) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case a.tasks <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.ctx.Done():
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-a.ctx.Done():
		return ErrClosed
	}
}

// Sync waits until every task queued before the call has run.
func (a *Agent) Sync(ctx context.Context) error {
	return a.do(ctx, func() {})
}

// trigger requests a re-identification pass. It never blocks.
func (a *Agent) trigger() {
	a.triggers.Add(1)
	select {
	case a.triggerC <- struct{}{}:
	default:
	}
}

// reconcile adopts the document's current URL and re-renders its hops.
func (a *Agent) reconcile(ctx context.Context) {
	a.reconciles.Add(1)
	if u := a.doc.URL(); u != a.currentURL {
		a.logger.Debug("pageagent: url changed", "from", a.currentURL, "to", u)
		a.currentURL = u
	}
	a.loadExistingHops(ctx)
}

// CurrentURL returns the URL the agent last reconciled against.
func (a *Agent) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := a.do(ctx, func() { u = a.currentURL })
	return u, err
}

// LoadExistingHops renders a marker for every hop of the current URL whose
// element resolves and has no marker yet, and drops markers of hops that
// no longer exist for the URL.
func (a *Agent) LoadExistingHops(ctx context.Context) error {
	return a.do(ctx, func() { a.reconcile(ctx) })
}

// Handle serves commands delivered by the dispatcher.
func (a *Agent) Handle(ctx context.Context, cmd command.Command) (command.Reply, error) {
	if a.ctx.Err() != nil {
		return command.Reply{}, ErrClosed
	}
	var err error
	switch c := cmd.(type) {
	case command.Ping:
		return command.Ack, nil
	case command.TabChanged:
		err = a.do(ctx, func() { a.reconcile(ctx) })
	case command.ShowModal:
		err = a.do(ctx, func() { a.showModal(c.SelectedText) })
	case command.Scroll:
		err = a.do(ctx, func() { a.scrollToMarker(c.HopID) })
	case command.Remove:
		err = a.do(ctx, func() { a.removeMarker(c.HopID) })
	case command.OpenSidebar, command.HideMenu:
		a.logger.Debug("pageagent: ignoring command", "action", c.Action())
	}
	if err != nil {
		return command.Reply{}, err
	}
	return command.Ack, nil
}

// CreateHop persists a hop for the element captured by the last context
// menu and renders its marker. Order is the number of hops the URL already
// has, so the new hop goes last.
func (a *Agent) CreateHop(ctx context.Context, title, color string) (hops.Hop, error) {
	var (
		h   hops.Hop
		err error
	)
	if derr := a.do(ctx, func() { h, err = a.createHop(ctx, title, color) }); derr != nil {
		return hops.Hop{}, derr
	}
	return h, err
}

// RemoveMarker drops the marker of hopID from the page. The store is not
// touched.
func (a *Agent) RemoveMarker(ctx context.Context, hopID string) error {
	return a.do(ctx, func() { a.removeMarker(hopID) })
}

// ScrollToMarker brings the marker of hopID into view and reports whether
// it was found.
func (a *Agent) ScrollToMarker(ctx context.Context, hopID string) (bool, error) {
	var ok bool
	err := a.do(ctx, func() { ok = a.scrollToMarker(hopID) })
	return ok, err
}

// Capture records el as the target of the next ShowModal/CreateHop, the way
// a context-menu event does.
func (a *Agent) Capture(ctx context.Context, el *html.Node) (bool, error) {
	var ok bool
	err := a.do(ctx, func() { ok = a.capture(el) })
	return ok, err
}

// ShowModal opens the create-hop overlay. It reports whether an overlay is
// open afterwards.
func (a *Agent) ShowModal(ctx context.Context, selectedText string) (bool, error) {
	var ok bool
	err := a.do(ctx, func() { ok = a.showModal(selectedText) })
	return ok, err
}

// Markers returns the hop ids of the markers present in the document, in
// document order.
func (a *Agent) Markers() []string {
	var ids []string
	for _, m := range a.allMarkers() {
		ids = append(ids, dom.Attr(m, MarkerAttr))
	}
	return ids
}
