package services

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"aiframe/config"
	"aiframe/internal/clients/fusionbrain"
	"aiframe/internal/display"
)

// rediscoverEvery throttles Begin retries while no model id is known.
const rediscoverEvery = time.Minute

var ErrNoPrompt = errors.New("generator: no prompt configured")

// FusionClient is the part of the fusionbrain client the generator drives.
type FusionClient interface {
	Begin(ctx context.Context) error
	GetStyles(ctx context.Context) error
	Generate(ctx context.Context, req fusionbrain.GenerateRequest) error
	Tick(ctx context.Context) error
	OnRender(fn fusionbrain.RenderFunc)
	OnRenderEnd(fn func())
	Status() string
	State() fusionbrain.State
	ModelID() int
	JobID() string
	StyleList() []string
	StyleAt(i int) string
	HasCredentials() bool
}

// Generator owns the frame loop: it ticks the client, fires automatic generations
// and paints finished images into the canvas.
type Generator struct {
	client FusionClient
	canvas *display.Canvas
	store  *display.SnapshotStore
	hub    *Hub
	cfg    config.GenerationConfig
	scale  int
	log    *log.Logger
	now    func() time.Time

	mu           sync.Mutex
	lastSubmit   time.Time
	lastDiscover time.Time
	lastStatus   string
	lastJob      string
}

func NewGenerator(client FusionClient, canvas *display.Canvas, store *display.SnapshotStore, hub *Hub, cfg config.GenerationConfig, scale int) *Generator {
	g := &Generator{
		client: client,
		canvas: canvas,
		store:  store,
		hub:    hub,
		cfg:    cfg,
		scale:  scale,
		log:    log.With("component", "generator"),
		now:    time.Now,
	}
	client.OnRender(canvas.Blit)
	client.OnRenderEnd(g.finish)
	return g
}

// Run restores the last frame, discovers styles and the model, then ticks until
// ctx is done.
func (g *Generator) Run(ctx context.Context) error {
	g.restore()

	g.mu.Lock()
	g.lastSubmit = g.now()
	g.mu.Unlock()

	g.discover(ctx)

	ticker := time.NewTicker(g.cfg.TickInterval())
	defer ticker.Stop()

	g.log.Info("generator started", "tick", g.cfg.TickInterval(), "auto", g.cfg.AutoPeriod())
	for {
		select {
		case <-ctx.Done():
			g.log.Info("generator stopped")
			return nil
		case <-ticker.C:
			g.Step(ctx)
		}
	}
}

func (g *Generator) restore() {
	if g.store == nil {
		return
	}
	img, err := g.store.Load(g.canvas.Bounds())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			g.log.Warn("snapshot not restored", "path", g.store.Path(), "err", err)
		}
		return
	}
	g.canvas.Restore(img)
	g.log.Info("snapshot restored", "path", g.store.Path())
}

func (g *Generator) discover(ctx context.Context) {
	g.mu.Lock()
	g.lastDiscover = g.now()
	g.mu.Unlock()

	if !g.client.HasCredentials() {
		g.log.Warn("no FusionBrain credentials, generation disabled")
		return
	}
	if err := g.client.GetStyles(ctx); err != nil {
		g.log.Warn("styles not refreshed, keeping catalog", "err", err)
	}
	if err := g.client.Begin(ctx); err != nil {
		g.log.Error("model discovery failed", "err", err)
	}
}

// Step runs one iteration of the loop.
func (g *Generator) Step(ctx context.Context) {
	defer g.publishStatus()

	if g.client.ModelID() < 0 {
		g.mu.Lock()
		due := g.now().Sub(g.lastDiscover) >= rediscoverEvery
		g.mu.Unlock()
		if due {
			g.discover(ctx)
		}
	}

	job := g.client.JobID()
	if err := g.client.Tick(ctx); err != nil && !errors.Is(err, fusionbrain.ErrBusy) {
		g.log.Warn("poll failed", "job", job, "err", err)
		if g.client.JobID() == "" {
			g.hub.Broadcast(WSEvent{Type: EventFailed, JobID: job, Status: g.client.Status(), Message: err.Error()})
		}
	}

	period := g.cfg.AutoPeriod()
	if period == 0 || g.client.JobID() != "" {
		return
	}
	g.mu.Lock()
	due := g.now().Sub(g.lastSubmit) >= period
	g.mu.Unlock()
	if !due {
		return
	}
	if _, err := g.Generate(ctx, GenerationInput{}); err != nil && !errors.Is(err, fusionbrain.ErrBusy) {
		g.log.Warn("automatic generation failed", "err", err)
	}
}

// GenerationInput overrides the configured generation parameters. Zero fields
// fall back to the configuration.
type GenerationInput struct {
	Prompt         string
	NegativePrompt string
	Style          string
	StyleIndex     *int
	Width          int
	Height         int
}

// Generate submits a job and returns its handle.
func (g *Generator) Generate(ctx context.Context, in GenerationInput) (string, error) {
	req := fusionbrain.GenerateRequest{
		Prompt:         in.Prompt,
		NegativePrompt: in.NegativePrompt,
		Style:          in.Style,
		Width:          in.Width,
		Height:         in.Height,
	}
	if req.Prompt == "" {
		req.Prompt = g.cfg.Prompt
		if in.NegativePrompt == "" {
			req.NegativePrompt = g.cfg.NegativePrompt
		}
	}
	if req.Prompt == "" {
		return "", ErrNoPrompt
	}
	if req.Style == "" {
		idx := g.cfg.StyleIndex
		if in.StyleIndex != nil {
			idx = *in.StyleIndex
		}
		req.Style = g.client.StyleAt(idx)
	}
	if req.Width <= 0 {
		req.Width = g.cfg.Width
	}
	if req.Height <= 0 {
		req.Height = g.cfg.Height
	}

	g.mu.Lock()
	g.lastSubmit = g.now()
	g.mu.Unlock()

	defer g.publishStatus()
	if err := g.client.Generate(ctx, req); err != nil {
		g.hub.Broadcast(WSEvent{Type: EventFailed, Status: g.client.Status(), Message: err.Error()})
		return "", err
	}

	w, h := req.Width, req.Height
	if w <= 0 {
		w = fusionbrain.DefaultWidth
	}
	if h <= 0 {
		h = fusionbrain.DefaultHeight
	}
	f := max(g.scale, 1)
	g.canvas.Center(w/f, h/f)

	job := g.client.JobID()
	g.mu.Lock()
	g.lastJob = job
	g.mu.Unlock()

	g.log.Info("generation submitted", "job", job, "style", req.Style, "width", w, "height", h)
	g.hub.Broadcast(WSEvent{Type: EventSubmitted, JobID: job, Status: g.client.Status()})
	return job, nil
}

// RefreshStyles reloads the style catalog.
func (g *Generator) RefreshStyles(ctx context.Context) ([]string, error) {
	if err := g.client.GetStyles(ctx); err != nil {
		return g.client.StyleList(), err
	}
	return g.client.StyleList(), nil
}

// finish runs when an image has been fully painted.
func (g *Generator) finish() {
	gen := g.canvas.Commit()

	g.mu.Lock()
	job := g.lastJob
	g.mu.Unlock()

	if g.store != nil {
		if err := g.store.Save(g.canvas.Snapshot()); err != nil {
			g.log.Warn("snapshot not saved", "path", g.store.Path(), "err", err)
		}
	}
	g.log.Info("frame completed", "job", job, "generation", gen)
	g.hub.Broadcast(WSEvent{Type: EventDone, JobID: job, Status: fusionbrain.StatusDone, Generation: gen})
}

func (g *Generator) StatusEvent() WSEvent {
	return WSEvent{
		Type:       EventStatus,
		JobID:      g.client.JobID(),
		Status:     g.client.Status(),
		Generation: g.canvas.Generation(),
	}
}

func (g *Generator) publishStatus() {
	ev := g.StatusEvent()
	g.mu.Lock()
	changed := ev.Status != g.lastStatus
	g.lastStatus = ev.Status
	g.mu.Unlock()
	if changed {
		g.hub.Broadcast(ev)
	}
}

func (g *Generator) Client() FusionClient { return g.client }

func (g *Generator) Canvas() *display.Canvas { return g.canvas }

func (g *Generator) AutoPeriod() time.Duration { return g.cfg.AutoPeriod() }
