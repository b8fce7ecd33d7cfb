package genealogy

import (
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
)

// overallStatus: сбой любой станции важнее, затем отсутствие данных
func overallStatus(failed, found bool) domain.Status {
	switch {
	case failed:
		return domain.StatusInternalServerError
	case !found:
		return domain.StatusNotFound
	default:
		return domain.StatusOK
	}
}

// Aggregate сворачивает записи станций в ответ. Границы ответа min/max по станциям,
// без данных остаются границы запроса.
func Aggregate(bounds domain.TimeRange, stations []domain.StationResult) *domain.GenealogyResult {
	result := &domain.GenealogyResult{
		FromDT:   bounds.From,
		ToDT:     bounds.To,
		Stations: stations,
	}
	if result.Stations == nil {
		result.Stations = []domain.StationResult{}
	}

	var failed, found, bounded bool
	for i := range stations {
		st := &stations[i]
		if st.Status == domain.StationFailed {
			failed = true
		}
		if st.HasData() {
			found = true
		}

		from, to, ok := st.Bounds()
		if !ok {
			continue
		}
		if !bounded || from.Before(result.FromDT) {
			result.FromDT = from
		}
		if !bounded || to.After(result.ToDT) {
			result.ToDT = to
		}
		bounded = true
	}

	result.Status = overallStatus(failed, found)
	return result
}
