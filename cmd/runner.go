package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/cache"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/credentials"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/providers"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/reload"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/shared"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	registry   *providers.Registry
	guard      *reload.Guard
	cache      cache.Store
	credStore  credentials.Store
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	Registry   *providers.Registry
	Guard      *reload.Guard
	Cache      cache.Store
	CredStore  credentials.Store
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory()
	}
	if opts.CredStore == nil {
		opts.CredStore = credentials.NewMemoryStore()
	}

	return &Runner{
		config:     opts.Config,
		registry:   opts.Registry,
		guard:      opts.Guard,
		cache:      opts.Cache,
		credStore:  opts.CredStore,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, servicesCommand, validateCommand, playlistCommand, searchCommand, authCommand, reloadCommand, cacheCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
