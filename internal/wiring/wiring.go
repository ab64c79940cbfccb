// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/parablock/internal/adapters/config"
	_ "go.trai.ch/parablock/internal/adapters/goparser"
	_ "go.trai.ch/parablock/internal/adapters/logger"
	_ "go.trai.ch/parablock/internal/adapters/metrics"
	_ "go.trai.ch/parablock/internal/adapters/telemetry"
	// Register app nodes.
	_ "go.trai.ch/parablock/internal/app"
)
