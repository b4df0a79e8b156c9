package di

import (
	"fmt"

	"github.com/aristath/tradeguard/internal/config"
	"github.com/rs/zerolog"
)

// Wire initializes all dependencies and returns a fully configured container
// Order of operations:
// 1. Initialize databases
// 2. Initialize repositories
// 3. Initialize services
// 4. Register jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := wireInto(container, cfg, log); err != nil {
		container.Close()
		return nil, err
	}

	log.Info().Msg("Dependency injection wiring completed successfully")
	return container, nil
}

// wireInto runs steps 2-4 on a container that already has its database
// and any collaborator overrides
func wireInto(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if err := InitializeRepositories(container, log); err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}
	if err := InitializeServices(container, cfg, log); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	if err := RegisterJobs(container, cfg, log); err != nil {
		return fmt.Errorf("failed to register jobs: %w", err)
	}
	return nil
}
