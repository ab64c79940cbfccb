package ports

import "go.trai.ch/parablock/internal/core/domain"

// ConfigLoader defines the interface for loading the project configuration.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load finds parablock.yaml from cwd upwards and returns the resolved configuration.
	// A missing file yields the defaults rooted at the enclosing module.
	Load(cwd string) (domain.Config, error)
}
