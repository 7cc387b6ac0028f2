// Package fusionbrain drives the FusionBrain (Kandinsky) text-to-image service:
// model and style discovery, job submission with retries, status polling and the
// streamed decode of the finished image into caller-owned tiles.
package fusionbrain

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"aiframe/internal/clients/transport"
	"aiframe/internal/codec/b64"
	"aiframe/internal/codec/tjpeg"
)

var tracer = otel.Tracer("aiframe/fusionbrain")

// Client is safe for concurrent use. Network operations are serialized: one that
// starts while another is running fails with ErrBusy.
type Client struct {
	http       http.Client
	apiBase    string
	stylesBase string
	policy     Policy
	format     tjpeg.Format
	swap       bool
	log        *log.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error

	op sync.Mutex

	mu       sync.RWMutex
	apiKey   string
	secret   string
	scale    tjpeg.Scale
	modelID  int
	styles   string
	job      string
	state    State
	status   string
	lastPoll time.Time
	onRender RenderFunc
	onEnd    func()
}

func NewClient(opts Options) *Client {
	c := &Client{
		apiBase:    strings.TrimRight(opts.APIBase, "/"),
		stylesBase: strings.TrimRight(opts.StylesBase, "/"),
		policy:     opts.Policy.withDefaults(),
		format:     opts.Format,
		swap:       opts.Swap,
		log:        opts.Logger,
		now:        opts.Now,
		sleep:      opts.Sleep,
		modelID:    -1,
		styles:     DefaultStyles,
		state:      Idle,
		status:     StatusIdle,
	}
	if c.apiBase == "" {
		c.apiBase = DefaultAPIBase
	}
	if c.stylesBase == "" {
		c.stylesBase = DefaultStylesBase
	}
	if opts.HTTPClient != nil {
		c.http = *opts.HTTPClient
	} else {
		c.http = http.Client{Timeout: 60 * time.Second}
	}
	if c.log == nil {
		c.log = log.New(io.Discard)
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	c.SetCredentials(opts.APIKey, opts.SecretKey)
	c.SetScale(opts.Scale)
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SetCredentials stores the key pair. It does nothing unless both values are set.
func (c *Client) SetCredentials(key, secret string) {
	if key == "" || secret == "" {
		return
	}
	c.mu.Lock()
	c.apiKey = "Key " + key
	c.secret = "Secret " + secret
	c.mu.Unlock()
}

// SetScale sets the decode reduction factor. Anything but 2, 4 or 8 means 1.
func (c *Client) SetScale(factor int) {
	c.mu.Lock()
	c.scale = tjpeg.ScaleFromFactor(factor)
	c.mu.Unlock()
}

func (c *Client) OnRender(fn RenderFunc) {
	c.mu.Lock()
	c.onRender = fn
	c.mu.Unlock()
}

func (c *Client) OnRenderEnd(fn func()) {
	c.mu.Lock()
	c.onEnd = fn
	c.mu.Unlock()
}

func (c *Client) Status() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ModelID returns the discovered model, or -1 before a successful Begin.
func (c *Client) ModelID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modelID
}

// JobID returns the outstanding job handle, empty when none.
func (c *Client) JobID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.job
}

// Styles returns the catalog joined with ';'.
func (c *Client) Styles() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.styles
}

func (c *Client) StyleList() []string {
	return strings.Split(c.Styles(), ";")
}

// StyleAt returns the i-th style of the catalog, or the first one when i is out
// of range.
func (c *Client) StyleAt(i int) string {
	list := c.StyleList()
	if i < 0 || i >= len(list) {
		return list[0]
	}
	return list[i]
}

func (c *Client) HasCredentials() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey != ""
}

func (c *Client) credentials() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey, c.secret
}

func (c *Client) enter(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// settle returns to Polling while a job is outstanding and to Idle otherwise.
func (c *Client) settle() {
	c.mu.Lock()
	if c.job != "" {
		c.state = Polling
	} else {
		c.state = Idle
	}
	c.mu.Unlock()
}

func (c *Client) setStatus(s string) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Begin discovers the model id used for generation.
func (c *Client) Begin(ctx context.Context) error {
	if !c.op.TryLock() {
		return ErrBusy
	}
	defer c.op.Unlock()

	key, secret := c.credentials()
	if key == "" {
		return ErrNoCredentials
	}

	ctx, span := tracer.Start(ctx, "fusionbrain.Begin")
	defer span.End()

	c.enter(DiscoveringModels)
	defer c.settle()

	url := c.apiBase + modelsPath
	models, err := transport.Get[[]modelInfo](c.http, ctx, url, requestHeaders(key, secret))
	if err != nil {
		c.log.Error("model discovery failed", "err", err)
		return fail(span, fmt.Errorf("fusionbrain: models: %w", err))
	}
	if len(models) == 0 || models[0].ID == nil || *models[0].ID < 0 {
		c.log.Error("model discovery returned no usable id", "models", len(models))
		return fail(span, protocolErr("no model id"))
	}

	id := *models[0].ID
	c.mu.Lock()
	c.modelID = id
	c.mu.Unlock()

	span.SetAttributes(attribute.Int("model.id", id))
	c.log.Info("model discovered", "id", id, "name", models[0].Name)
	return nil
}

// GetStyles replaces the style catalog with the names served by the styles CDN.
// An empty answer leaves the catalog as it was.
func (c *Client) GetStyles(ctx context.Context) error {
	if !c.op.TryLock() {
		return ErrBusy
	}
	defer c.op.Unlock()

	key, secret := c.credentials()
	if key == "" {
		return ErrNoCredentials
	}

	ctx, span := tracer.Start(ctx, "fusionbrain.GetStyles")
	defer span.End()

	c.enter(DiscoveringStyles)
	defer c.settle()

	url := c.stylesBase + stylesPath
	styles, err := transport.Get[[]styleInfo](c.http, ctx, url, requestHeaders(key, secret))
	if err != nil {
		c.log.Error("style discovery failed", "err", err)
		return fail(span, fmt.Errorf("fusionbrain: styles: %w", err))
	}

	names := make([]string, 0, len(styles))
	for _, s := range styles {
		names = append(names, s.Name)
	}
	joined := strings.Join(names, ";")
	if joined == "" {
		return fail(span, protocolErr("no styles"))
	}

	c.mu.Lock()
	c.styles = joined
	c.mu.Unlock()

	span.SetAttributes(attribute.Int("styles.count", len(names)))
	c.log.Info("styles discovered", "styles", joined)
	return nil
}

// Generate submits a job. On success the job handle is set and Tick starts
// polling it. A job that is still outstanding is replaced.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) error {
	if !c.op.TryLock() {
		return ErrBusy
	}
	defer c.op.Unlock()

	c.mu.RLock()
	key, secret, modelID := c.apiKey, c.secret, c.modelID
	c.mu.RUnlock()

	if key == "" || modelID < 0 || req.Style == "" || req.Prompt == "" {
		c.setStatus(StatusWrongConfig)
		return ErrWrongConfig
	}
	if req.Width <= 0 {
		req.Width = DefaultWidth
	}
	if req.Height <= 0 {
		req.Height = DefaultHeight
	}

	ctx, span := tracer.Start(ctx, "fusionbrain.Generate", trace.WithAttributes(
		attribute.String("style", req.Style),
		attribute.Int("width", req.Width),
		attribute.Int("height", req.Height),
	))
	defer span.End()

	c.enter(Submitting)
	defer c.settle()

	params, err := json.Marshal(jobParams{
		Type:                 "GENERATE",
		Style:                req.Style,
		NegativePromptUnclip: req.NegativePrompt,
		Width:                req.Width,
		Height:               req.Height,
		NumImages:            1,
		GenerateParams:       generateParams{Query: req.Prompt},
	})
	if err != nil {
		return fail(span, err)
	}
	parts := []transport.Part{
		{Name: "model_id", Body: []byte(strconv.Itoa(modelID))},
		{Name: "params", Filename: "blob", ContentType: "application/json", Body: params},
	}

	url := c.apiBase + runPath
	headers := requestHeaders(key, secret)

	var lastErr error
	for attempt := 1; attempt <= c.policy.Tries; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.policy.RetryDelay); err != nil {
				lastErr = err
				break
			}
		}

		resp, err := transport.PostMultipart[runResponse](c.http, ctx, url, parts, headers)
		if err != nil {
			lastErr = err
			c.log.Warn("generation request failed", "attempt", attempt, "tries", c.policy.Tries, "err", err)
			continue
		}
		// a 2xx without a job handle fails at once; only request errors are retried
		if resp.UUID == "" {
			c.setStatus(StatusRequestError)
			return fail(span, protocolErr("run response without uuid"))
		}

		c.mu.Lock()
		c.job = resp.UUID
		c.status = StatusWaitResult
		c.lastPoll = c.now()
		c.mu.Unlock()

		span.SetAttributes(attribute.String("job.id", resp.UUID), attribute.Int("attempts", attempt))
		c.log.Info("generation submitted", "job", resp.UUID, "attempt", attempt)
		return nil
	}

	c.mu.Lock()
	c.status = StatusRequestError
	c.mu.Unlock()
	c.log.Error("generation request gave up", "tries", c.policy.Tries, "err", lastErr)
	return fail(span, fmt.Errorf("%w: %w", ErrRequest, lastErr))
}

// Tick polls the outstanding job once its polling period has elapsed. It is meant
// to be called frequently from the owner's loop.
func (c *Client) Tick(ctx context.Context) error {
	c.mu.RLock()
	job, last := c.job, c.lastPoll
	c.mu.RUnlock()

	if job == "" || c.now().Sub(last) < c.policy.PollPeriod {
		return nil
	}
	return c.GetImage(ctx)
}

// GetImage requests the job status. While the job is processing it returns nil and
// keeps the handle; once it is done the image is decoded through the render
// callback.
func (c *Client) GetImage(ctx context.Context) error {
	if !c.op.TryLock() {
		return ErrBusy
	}
	defer c.op.Unlock()

	c.mu.Lock()
	key, secret, job := c.apiKey, c.secret, c.job
	if key != "" && job != "" {
		c.lastPoll = c.now()
		c.state = Polling
	}
	c.mu.Unlock()

	if key == "" {
		return ErrNoCredentials
	}
	if job == "" {
		return ErrNoJob
	}

	ctx, span := tracer.Start(ctx, "fusionbrain.GetImage", trace.WithAttributes(attribute.String("job.id", job)))
	defer span.End()
	defer c.settle()

	url := c.apiBase + statusPath + job
	resp, err := transport.Stream(c.http, ctx, url, requestHeaders(key, secret))
	if err != nil {
		c.log.Error("status request failed", "job", job, "err", err)
		return fail(span, fmt.Errorf("fusionbrain: status: %w", err))
	}
	defer resp.Body.Close()

	if err := c.readStatus(ctx, job, resp.Body); err != nil {
		return fail(span, err)
	}
	return nil
}

func (c *Client) clearJob(job string) {
	c.mu.Lock()
	if c.job == job {
		c.job = ""
	}
	c.mu.Unlock()
}

func (c *Client) readStatus(ctx context.Context, job string, body io.Reader) error {
	s := newScanner(body)
	if err := s.begin(); err != nil {
		return err
	}

	done := false
	for {
		key, ok, err := s.key()
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		switch key {
		case "status":
			val, err := s.stringValue(maxStatusLen)
			if err != nil {
				return err
			}
			switch val {
			case "INITIAL", "PROCESSING":
				c.log.Debug("generation in progress", "job", job, "status", val)
				return nil
			case "DONE":
				c.clearJob(job)
				done = true
			case "FAIL":
				c.clearJob(job)
				c.setStatus(StatusFail)
				c.log.Warn("generation failed", "job", job)
				return ErrGenerationFailed
			default:
				return protocolErr("status %q", val)
			}
		case "images":
			if !done {
				return protocolErr("images before status")
			}
			img, ok, err := s.imageValue()
			if err != nil {
				c.setStatus(StatusJPGError)
				return err
			}
			if !ok {
				continue
			}
			return c.decode(ctx, job, img)
		default:
			if err := s.skipValue(); err != nil {
				return err
			}
		}
	}

	if done {
		c.setStatus(StatusJPGError)
		return ErrNoImage
	}
	return protocolErr("no status")
}

// decode streams the base64 image through the JPEG decoder. The workspace lives
// only for this call.
func (c *Client) decode(ctx context.Context, job string, img io.Reader) error {
	c.mu.RLock()
	scale, render, end := c.scale, c.onRender, c.onEnd
	c.mu.RUnlock()

	ws := tjpeg.NewWorkspace()
	tiles := 0
	err := tjpeg.Decode(b64.NewReader(img), ws, scale, func(r image.Rectangle, pix []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		tiles++
		if render != nil {
			render(r.Min.X, r.Min.Y, r.Dx(), r.Dy(), pix)
		}
		return nil
	}, tjpeg.WithFormat(c.format), tjpeg.WithSwap(c.swap))

	if err != nil {
		c.setStatus(StatusJPGError)
		c.log.Error("image decode failed", "job", job, "tiles", tiles, "err", err)
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}

	c.setStatus(StatusDone)
	c.log.Info("image decoded", "job", job, "tiles", tiles, "scale", scale.Factor())
	if end != nil {
		end()
	}
	return nil
}
