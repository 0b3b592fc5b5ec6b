package cli

import (
	"fmt"
	"os"

	"github.com/watzon/localgw/internal/bundler"
	"github.com/watzon/localgw/internal/config"
	"github.com/watzon/localgw/internal/registry"
)

// loadService locates and parses the service definition.
func loadService(cfg *config.Config) (*registry.Service, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}

	path, err := registry.Locate(wd, cfg.Service.Path)
	if err != nil {
		return nil, err
	}
	return registry.Load(path)
}

// newBundler builds the command bundler for a service.
func newBundler(cfg *config.Config, svc *registry.Service) *bundler.CommandBundler {
	return bundler.NewCommandBundler(bundler.Config{
		Dir:      svc.Path,
		Command:  cfg.Build.Command,
		Args:     cfg.Build.Args,
		Env:      cfg.Build.Env,
		Output:   cfg.Build.Output,
		Watch:    cfg.Build.Watch,
		Debounce: cfg.Build.Debounce,
		Timeout:  cfg.Build.Timeout,
	})
}
