package genealogy

import (
	"testing"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestAggregate_StatusPrecedence(t *testing.T) {
	ok := domain.StationResult{
		Status:      domain.StationOK,
		Occurrences: []domain.Occurrence{{FromDT: hour(2), ToDT: hour(5)}},
	}
	failed := domain.StationResult{Status: domain.StationFailed, Error: "boom"}
	missing := domain.StationResult{Status: domain.StationNotFound}

	assert.Equal(t, domain.StatusInternalServerError, Aggregate(day(), []domain.StationResult{ok, failed}).Status)
	assert.Equal(t, domain.StatusInternalServerError, Aggregate(day(), []domain.StationResult{failed}).Status)
	assert.Equal(t, domain.StatusNotFound, Aggregate(day(), []domain.StationResult{missing}).Status)
	assert.Equal(t, domain.StatusNotFound, Aggregate(day(), nil).Status)
	assert.Equal(t, domain.StatusOK, Aggregate(day(), []domain.StationResult{ok, missing}).Status)
}

func TestAggregate_Bounds(t *testing.T) {
	stations := []domain.StationResult{
		{Status: domain.StationOK, Occurrences: []domain.Occurrence{{FromDT: hour(6), ToDT: hour(8)}}},
		{Status: domain.StationOK, Identifiers: []domain.Identifier{{Value: "A", CreatedDT: hour(3)}, {Value: "B", CreatedDT: hour(7)}}},
		{Status: domain.StationNotFound},
	}

	res := Aggregate(day(), stations)
	assert.Equal(t, hour(3), res.FromDT)
	assert.Equal(t, hour(8), res.ToDT)

	res = Aggregate(day(), []domain.StationResult{{Status: domain.StationNotFound}})
	assert.Equal(t, hour(0), res.FromDT)
	assert.Equal(t, hour(24), res.ToDT)
	assert.NotNil(t, Aggregate(day(), nil).Stations)
}
