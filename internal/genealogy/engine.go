package genealogy

import (
	"context"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/historian"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/scheduler"

	"go.uber.org/zap"
)

const (
	ModeDescendant  = "descendant"
	ModeAscendant   = "ascendant"
	ModeReliability = "reliability"
	ModeLookup      = "lookup"
	ModeSnapshot    = "snapshot"
)

// Runner выполняет задачи станций, см. scheduler.Scheduler
type Runner interface {
	Run(ctx context.Context, mode string, tasks []scheduler.Task) []error
}

// Engine движок разрешения генеалогии поверх историана
type Engine struct {
	hist     historian.Historian
	runner   Runner
	boundary *BoundaryResolver
	locator  *Locator
	settings Settings
	logger   *zap.Logger
	now      func() time.Time
}

func NewEngine(hist historian.Historian, runner Runner, settings Settings, logger *zap.Logger) *Engine {
	boundary := NewBoundaryResolver(hist, settings.BoundaryTimeout, logger)
	return &Engine{
		hist:     hist,
		runner:   runner,
		boundary: boundary,
		locator:  NewLocator(hist, boundary, settings.ReadTimeout, settings.HotReadTimeout, logger),
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

func (e *Engine) signal(name string) domain.SignalIdentity {
	return domain.NewSignalIdentity(e.settings.InterfaceGroup, e.settings.InterfaceName, name)
}
