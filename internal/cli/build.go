package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/caarlos0/env/v11"

	"github.com/slipwayhq/slipway/internal/manifest"
	"github.com/slipwayhq/slipway/internal/paths"
	"github.com/slipwayhq/slipway/internal/pipeline"
	"github.com/slipwayhq/slipway/internal/runtime"
)

// Connection settings for the containerd runtime.
//
// Flags win over these; they in turn win over the built-in defaults.
type runtimeConfig struct {
	Address   string `env:"SLIPWAY_ADDRESS"   envDefault:"/run/containerd/containerd.sock"`
	Namespace string `env:"SLIPWAY_NAMESPACE" envDefault:"slipway"`
}

// Represents the 'slipway build' command.
type BuildCmd struct {
	Context   string `arg:"" optional:"" default:"." help:"Build context directory." type:"existingdir"`
	Manifest  string `short:"m" help:"Path to the pipeline manifest. Defaults to <context>/slipway.yaml." placeholder:"PATH"`
	Output    string `short:"o" help:"Directory for the exported image. Defaults to a per-app data directory." placeholder:"DIR"`
	Platform  string `short:"p" help:"Target platform (e.g., linux/amd64). Defaults to the host platform." placeholder:"PLATFORM"`
	Address   string `short:"a" help:"Containerd socket address." placeholder:"PATH"`
	Namespace string `short:"n" help:"Containerd namespace." placeholder:"NAME"`
}

// Executes the build command.
func (c *BuildCmd) Run(ctx context.Context) error {
	manifestPath := c.Manifest
	if manifestPath == "" {
		manifestPath = filepath.Join(c.Context, manifest.DefaultFileName)
	}

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}

	// The manifest's context is relative to the directory it was invoked
	// against.
	buildContext := filepath.Join(c.Context, m.Context)

	output := c.Output
	if output == "" {
		output = paths.DefaultOutput(m.App)
	}

	cfg, err := env.ParseAs[runtimeConfig]()
	if err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	if c.Address != "" {
		cfg.Address = c.Address
	}
	if c.Namespace != "" {
		cfg.Namespace = c.Namespace
	}

	rt, err := runtime.New(cfg.Address, cfg.Namespace)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := pipeline.Run(ctx, rt, pipeline.Options{
		Manifest: m,
		Context:  buildContext,
		Output:   output,
		Platform: c.Platform,
	})
	if err != nil {
		return err
	}

	slog.Info("image exported", "app", m.App, "output", result.Output)
	return nil
}
