package genealogy

import (
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/historian"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/scheduler"

	"go.uber.org/zap"
)

var base = time.Date(2024, 4, 8, 0, 0, 0, 0, time.UTC)

func hour(h float64) time.Time {
	return base.Add(time.Duration(h * float64(time.Hour)))
}

func testSettings() Settings {
	return Settings{
		InterfaceGroup:      "Traceability",
		InterfaceName:       "OPC",
		DescendantWindow:    6 * time.Hour,
		AscendantWindow:     12 * time.Hour,
		AscendantScanWindow: 6 * time.Hour,
		BackwardStep:        6 * time.Hour,
		BoundaryTimeout:     time.Second,
		HotReadTimeout:      time.Second,
		ReadTimeout:         time.Second,
		BroadReadTimeout:    time.Second,
		TagParallelism:      2,
	}
}

func newTestEngine(h historian.Historian) *Engine {
	logger := zap.NewNop()
	return NewEngine(h, scheduler.NewScheduler(4, time.Minute, logger), testSettings(), logger)
}

func sig(name string) domain.SignalIdentity {
	return domain.NewSignalIdentity("Traceability", "OPC", name)
}

func day() domain.TimeRange {
	return domain.TimeRange{From: hour(0), To: hour(24)}
}
