package fusionbrain

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"aiframe/internal/codec/tjpeg"
)

// State is the operation the client is currently performing.
type State int

const (
	Idle State = iota
	DiscoveringModels
	DiscoveringStyles
	Submitting
	Polling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case DiscoveringModels:
		return "discovering_models"
	case DiscoveringStyles:
		return "discovering_styles"
	case Submitting:
		return "submitting"
	case Polling:
		return "polling"
	default:
		return "unknown"
	}
}

// Status texts, the last observable outcome of the client.
const (
	StatusIdle         = "idle"
	StatusWaitResult   = "wait result"
	StatusDone         = "gen done"
	StatusFail         = "gen fail"
	StatusJPGError     = "jpg error"
	StatusRequestError = "gen request error"
	StatusWrongConfig  = "wrong config"
)

// DefaultStyles is the catalog used until the styles endpoint answers.
const DefaultStyles = "DEFAULT;ANIME;UHD;KANDINSKY"

const (
	DefaultTries      = 5
	DefaultRetryDelay = 2 * time.Second
	DefaultPollPeriod = 6 * time.Second

	DefaultWidth  = 512
	DefaultHeight = 512
)

// Policy holds the retry and polling knobs. Zero fields take the defaults.
type Policy struct {
	Tries      int
	RetryDelay time.Duration
	PollPeriod time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.Tries <= 0 {
		p.Tries = DefaultTries
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = DefaultRetryDelay
	}
	if p.PollPeriod <= 0 {
		p.PollPeriod = DefaultPollPeriod
	}
	return p
}

// RenderFunc receives one decoded tile. pix is only valid during the call.
type RenderFunc func(x, y, w, h int, pix []byte)

// GenerateRequest describes one text-to-image job. Zero Width or Height mean 512.
type GenerateRequest struct {
	Prompt         string
	Width          int
	Height         int
	Style          string
	NegativePrompt string
}

type Options struct {
	APIKey    string
	SecretKey string
	// Scale is the decode reduction factor: 1, 2, 4 or 8.
	Scale int

	APIBase    string
	StylesBase string
	HTTPClient *http.Client
	Policy     Policy

	// Format and Swap select the pixel layout handed to the render callback.
	Format tjpeg.Format
	Swap   bool

	Logger *log.Logger
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
}

type modelInfo struct {
	ID      *int   `json:"id"`
	Name    string `json:"name"`
	Version any    `json:"version"`
	Type    string `json:"type"`
}

type styleInfo struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	TitleEn string `json:"titleEn"`
	Image   string `json:"image"`
}

type generateParams struct {
	Query string `json:"query"`
}

type jobParams struct {
	Type                 string         `json:"type"`
	Style                string         `json:"style"`
	NegativePromptUnclip string         `json:"negativePromptUnclip"`
	Width                int            `json:"width"`
	Height               int            `json:"height"`
	NumImages            int            `json:"num_images"`
	GenerateParams       generateParams `json:"generateParams"`
}

type runResponse struct {
	UUID   string `json:"uuid"`
	Status string `json:"status"`
}
