package genealogy

import (
	"context"
	"fmt"
	"sort"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/scheduler"

	"go.uber.org/zap"
)

// LookupPosition находит последнюю по порядку линию, на которой встречался идентификатор.
// Линии перебираются по убыванию LineGroupSeq, затем LineSeq; поиск останавливается на первой находке.
func (e *Engine) LookupPosition(ctx context.Context, req *domain.LookupRequest) (*domain.LookupResult, error) {
	result := &domain.LookupResult{
		DataMatrix:    req.DataMatrix,
		FromDT:        req.FromDT,
		ToDT:          req.ToDT,
		LineGroupSeqs: append([]domain.LineGroupSeq(nil), req.LineGroupSeqs...),
	}
	sort.SliceStable(result.LineGroupSeqs, func(i, j int) bool {
		a, b := result.LineGroupSeqs[i], result.LineGroupSeqs[j]
		if a.LineGroupSeq != b.LineGroupSeq {
			return a.LineGroupSeq > b.LineGroupSeq
		}
		return a.LineSeq > b.LineSeq
	})

	bounds := domain.TimeRange{From: req.FromDT, To: req.ToDT}
	task := func(ctx context.Context) error {
		for i := range result.LineGroupSeqs {
			line := &result.LineGroupSeqs[i]

			p, found, err := e.locator.FindLatest(ctx, e.signal(line.TagName), req.DataMatrix, bounds, e.settings.BackwardStep)
			if err != nil {
				return fmt.Errorf("line %d/%d: %w", line.LineGroupSeq, line.LineSeq, err)
			}
			if found {
				firstDT := p.Time
				line.IsFound = true
				result.FirstDT = &firstDT
				return nil
			}
		}
		return nil
	}

	errs := e.runner.Run(ctx, ModeLookup, []scheduler.Task{task})

	result.Status = overallStatus(errs[0] != nil, result.FirstDT != nil)
	if errs[0] != nil {
		result.Error = errs[0].Error()
	}

	e.logger.Info("[Genealogy] identifier position looked up",
		zap.String("data_matrix", req.DataMatrix),
		zap.Int("lines", len(result.LineGroupSeqs)),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}
