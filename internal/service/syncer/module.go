package syncer

import "go.uber.org/fx"

// Module provides the sync orchestrator.
var Module = fx.Provide(NewService)
