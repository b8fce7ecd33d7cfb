package genealogy

import (
	"context"
	"fmt"
	"sort"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/scheduler"

	"go.uber.org/zap"
)

// CheckReliability проверяет, что идентификатор прошёл все теги маршрута в порядке
// убывания Sequence: каждый следующий тег ищется не позже найденного момента предыдущего.
func (e *Engine) CheckReliability(ctx context.Context, req *domain.ReliabilityRequest) (*domain.ReliabilityResult, error) {
	result := &domain.ReliabilityResult{
		DataMatrix: req.DataMatrix,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		TagNames:   append([]domain.ReliabilityTag(nil), req.TagNames...),
	}
	sort.SliceStable(result.TagNames, func(i, j int) bool {
		return result.TagNames[i].Sequence > result.TagNames[j].Sequence
	})

	task := func(ctx context.Context) error {
		cursor := req.EndTime
		for i := range result.TagNames {
			tag := &result.TagNames[i]

			p, found, err := e.locator.FindLatest(ctx, e.signal(tag.TagAddress), req.DataMatrix,
				domain.TimeRange{From: req.StartTime, To: cursor}, e.settings.BackwardStep)
			if err != nil {
				return fmt.Errorf("tag %s: %w", tag.TagAddress, err)
			}
			if !found {
				e.logger.Debug("[Genealogy] reliability tag not retrieved",
					zap.String("data_matrix", req.DataMatrix),
					zap.String("tag", tag.TagAddress),
				)
				continue
			}

			foundAt := p.Time
			tag.IsRetrieved = true
			tag.FoundDT = &foundAt
			cursor = p.Time
		}
		return nil
	}

	errs := e.runner.Run(ctx, ModeReliability, []scheduler.Task{task})

	retrieved := 0
	for _, tag := range result.TagNames {
		if tag.IsRetrieved {
			retrieved++
		}
	}
	result.Reliable = retrieved == len(result.TagNames)
	result.Status = overallStatus(errs[0] != nil, retrieved > 0)
	if errs[0] != nil {
		result.Error = errs[0].Error()
	}

	e.logger.Info("[Genealogy] reliability checked",
		zap.String("data_matrix", req.DataMatrix),
		zap.Int("tags", len(result.TagNames)),
		zap.Int("retrieved", retrieved),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}
