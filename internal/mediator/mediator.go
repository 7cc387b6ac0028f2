package mediator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"aiframe/config"
	"aiframe/internal/clients/fusionbrain"
	"aiframe/internal/display"
	"aiframe/internal/services"
	"aiframe/utils"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	api *services.Api
	gen *services.Generator
	hub *services.Hub
	// settings
	Config config.Config
}

func NewApp(config config.Config) (*App, error) {
	client := fusionbrain.NewClient(fusionbrain.Options{
		APIKey:     config.Fusion.ApiKey,
		SecretKey:  config.Fusion.SecretKey,
		Scale:      config.Fusion.Scale,
		APIBase:    config.Fusion.ApiBase,
		StylesBase: config.Fusion.StylesBase,
		HTTPClient: &http.Client{Timeout: config.Fusion.Timeout()},
		Policy: fusionbrain.Policy{
			Tries:      config.Fusion.Tries,
			RetryDelay: config.Fusion.RetryDelay(),
			PollPeriod: config.Fusion.PollPeriod(),
		},
		Logger: log.With("component", "fusionbrain"),
	})

	canvas := display.NewCanvas(config.Display.Width, config.Display.Height)

	var store *display.SnapshotStore
	if config.Snapshot.Enabled {
		dir, err := utils.SafeSubdir(".", config.Snapshot.Dir)
		if err != nil {
			return nil, fmt.Errorf("error creating newapp: snapshot dir: %w", err)
		}
		file := filepath.Base(config.Snapshot.File)
		if file == "." || file == string(filepath.Separator) {
			file = "frame.zst"
		}
		store = display.NewSnapshotStore(filepath.Join(dir, file))
	}

	hub := services.NewHub()
	gen := services.NewGenerator(client, canvas, store, hub, config.Generation, config.Fusion.Scale)
	api := services.NewApi(gen, hub, config.Api)

	return &App{
		api:    api,
		gen:    gen,
		hub:    hub,
		Config: config,
	}, nil
}

// Start runs the HTTP server and the frame loop until ctx is done or either fails.
func (a *App) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.api.Start(); err != nil {
			return fmt.Errorf("api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.gen.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		return a.Shutdown()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.api.Shutdown(ctx)
}
