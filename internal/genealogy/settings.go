package genealogy

import (
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/config"
)

// Settings размеры окон и дедлайны движка
type Settings struct {
	InterfaceGroup string
	InterfaceName  string

	DescendantWindow    time.Duration
	AscendantWindow     time.Duration
	AscendantScanWindow time.Duration
	BackwardStep        time.Duration

	BoundaryTimeout  time.Duration
	HotReadTimeout   time.Duration
	ReadTimeout      time.Duration
	BroadReadTimeout time.Duration

	TagParallelism int
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		InterfaceGroup:      cfg.Historian.InterfaceGroup,
		InterfaceName:       cfg.Historian.InterfaceName,
		DescendantWindow:    cfg.Windows.Descendant,
		AscendantWindow:     cfg.Windows.Ascendant,
		AscendantScanWindow: cfg.Windows.AscendantScan,
		BackwardStep:        cfg.Windows.BackwardStep,
		BoundaryTimeout:     cfg.Timeouts.Boundary,
		HotReadTimeout:      cfg.Timeouts.HotRead,
		ReadTimeout:         cfg.Timeouts.Read,
		BroadReadTimeout:    cfg.Timeouts.BroadRead,
		TagParallelism:      cfg.Historian.TagParallelism,
	}
}
