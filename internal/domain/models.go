package domain

import (
	"strings"
	"time"
)

// SignalIdentity полностью квалифицированный канал историана
type SignalIdentity struct {
	Group     string `json:"interfaceGroup"`
	Interface string `json:"interfaceName"`
	Name      string `json:"name"`
}

func NewSignalIdentity(group, iface, name string) SignalIdentity {
	return SignalIdentity{Group: group, Interface: iface, Name: strings.TrimSpace(name)}
}

func (s SignalIdentity) String() string {
	return s.Group + "/" + s.Interface + "/" + s.Name
}

// TimeRange запрошенный интервал
type TimeRange struct {
	From time.Time `json:"fromDT"`
	To   time.Time `json:"toDT"`
}

// Window подинтервал, выданный сплиттером
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Point одно значение канала
type Point struct {
	Time  time.Time `json:"time"`
	Value string    `json:"value"`
}

// Occurrence момент, когда канал содержал искомое значение, и его окно валидности
type Occurrence struct {
	Channel    string    `json:"channel"`
	Value      string    `json:"value"`
	ObservedAt time.Time `json:"observedAt"`
	FromDT     time.Time `json:"fromDT"`
	ToDT       time.Time `json:"toDT"`
}

// Identifier значение идентификатора, обнаруженное на станции
type Identifier struct {
	Value     string    `json:"value"`
	CreatedDT time.Time `json:"createdDT"`
}

type Status string

const (
	StatusOK                  Status = "OK"
	StatusNotFound            Status = "NotFound"
	StatusInternalServerError Status = "InternalServerError"
)

type StationStatus string

const (
	StationOK       StationStatus = "OK"
	StationNotFound StationStatus = "NotFound"
	StationFailed   StationStatus = "Failed"
)

// DescendantStation станция в запросе нисходящей генеалогии
type DescendantStation struct {
	Machine           string            `json:"machine" validate:"required"`
	Station           string            `json:"station" validate:"required"`
	IdentifierChannel string            `json:"identifierChannel" validate:"required"`
	TriggerChannel    string            `json:"triggerChannel" validate:"required"`
	AuxiliaryChannels map[string]string `json:"auxiliaryChannels"`
}

type DescendantRequest struct {
	FromDT           time.Time           `json:"fromDT" validate:"required"`
	ToDT             time.Time           `json:"toDT" validate:"required"`
	IncludeRework    bool                `json:"includeRework"`
	TargetIdentifier string              `json:"targetIdentifier" validate:"required"`
	Stations         []DescendantStation `json:"stations" validate:"required,min=1,dive"`
}

// AscendantStation станция в запросе восходящей генеалогии
type AscendantStation struct {
	Machine           string   `json:"machine" validate:"required"`
	Station           string   `json:"station" validate:"required"`
	TagAddresses      []string `json:"tagAddresses" validate:"required,min=1,dive,required"`
	IdentifierChannel string   `json:"identifierChannel" validate:"required"`
	TriggerChannel    string   `json:"triggerChannel" validate:"required"`
}

type AscendantRequest struct {
	FromDT      time.Time          `json:"fromDT" validate:"required"`
	ToDT        time.Time          `json:"toDT" validate:"required"`
	LookupValue string             `json:"lookupValue" validate:"required"`
	Stations    []AscendantStation `json:"stations" validate:"required,min=1,dive"`
}

// StationResult запись станции в ответе. Для нисходящего режима одна запись на вхождение.
type StationResult struct {
	Machine           string            `json:"machine"`
	Station           string            `json:"station"`
	FromDT            time.Time         `json:"fromDT"`
	ToDT              time.Time         `json:"toDT"`
	IdentifierChannel string            `json:"identifierChannel"`
	TriggerChannel    string            `json:"triggerChannel"`
	TagAddresses      []string          `json:"tagAddresses,omitempty"`
	AuxiliaryChannels map[string]string `json:"auxiliaryChannels,omitempty"`
	Occurrences       []Occurrence      `json:"occurrences"`
	Identifiers       []Identifier      `json:"identifiers,omitempty"`
	Status            StationStatus     `json:"status"`
	Error             string            `json:"error,omitempty"`
}

// HasData true, если станция что-то нашла
func (s *StationResult) HasData() bool {
	return len(s.Occurrences) > 0 || len(s.Identifiers) > 0
}

// Bounds границы станции: по идентификаторам, иначе по вхождениям
func (s *StationResult) Bounds() (time.Time, time.Time, bool) {
	var from, to time.Time
	found := false

	extend := func(a, b time.Time) {
		if !found || a.Before(from) {
			from = a
		}
		if !found || b.After(to) {
			to = b
		}
		found = true
	}

	if len(s.Identifiers) > 0 {
		for _, id := range s.Identifiers {
			extend(id.CreatedDT, id.CreatedDT)
		}
		return from, to, true
	}
	for _, occ := range s.Occurrences {
		extend(occ.FromDT, occ.ToDT)
	}
	return from, to, found
}

type GenealogyResult struct {
	RequestID string          `json:"requestId"`
	FromDT    time.Time       `json:"fromDT"`
	ToDT      time.Time       `json:"toDT"`
	Status    Status          `json:"status"`
	Stations  []StationResult `json:"stations"`
}

// ReliabilityTag тег для проверки надёжности
type ReliabilityTag struct {
	Sequence    int        `json:"sequence"`
	TagAddress  string     `json:"tagAddress" validate:"required"`
	IsRetrieved bool       `json:"isRetrieved"`
	FoundDT     *time.Time `json:"foundDT,omitempty"`
}

type ReliabilityRequest struct {
	DataMatrix string           `json:"dataMatrix" validate:"required"`
	StartTime  time.Time        `json:"startTime" validate:"required"`
	EndTime    time.Time        `json:"endTime" validate:"required"`
	TagNames   []ReliabilityTag `json:"tagNames" validate:"required,min=1,dive"`
}

type ReliabilityResult struct {
	RequestID  string           `json:"requestId"`
	DataMatrix string           `json:"dataMatrix"`
	StartTime  time.Time        `json:"startTime"`
	EndTime    time.Time        `json:"endTime"`
	Reliable   bool             `json:"reliable"`
	TagNames   []ReliabilityTag `json:"tagNames"`
	Status     Status           `json:"status"`
	Error      string           `json:"error,omitempty"`
}

// LineGroupSeq позиция линии для поиска идентификатора
type LineGroupSeq struct {
	LineGroupSeq   int    `json:"lineGroupSeq"`
	LineSeq        int    `json:"lineSeq"`
	MachineStageID int    `json:"machineStageId"`
	TagName        string `json:"tagName" validate:"required"`
	IsFound        bool   `json:"isFound"`
}

type LookupRequest struct {
	DataMatrix    string         `json:"dataMatrix" validate:"required"`
	FromDT        time.Time      `json:"fromDT" validate:"required"`
	ToDT          time.Time      `json:"toDT" validate:"required"`
	LineGroupSeqs []LineGroupSeq `json:"lineGroupSeqs" validate:"required,min=1,dive"`
}

type LookupResult struct {
	RequestID     string         `json:"requestId"`
	DataMatrix    string         `json:"dataMatrix"`
	FromDT        time.Time      `json:"fromDT"`
	ToDT          time.Time      `json:"toDT"`
	FirstDT       *time.Time     `json:"firstDT,omitempty"`
	LineGroupSeqs []LineGroupSeq `json:"lineGroupSeqs"`
	Status        Status         `json:"status"`
	Error         string         `json:"error,omitempty"`
}

// SnapshotStation станция для снимка всех идентификаторов за период
type SnapshotStation struct {
	Machine           string            `json:"machine" validate:"required"`
	Station           string            `json:"station" validate:"required"`
	FromDT            time.Time         `json:"fromDT" validate:"required"`
	ToDT              time.Time         `json:"toDT" validate:"required"`
	IdentifierChannel string            `json:"identifierChannel" validate:"required"`
	TriggerChannel    string            `json:"triggerChannel" validate:"required"`
	AuxiliaryChannels map[string]string `json:"auxiliaryChannels"`
}

type SnapshotRequest struct {
	Stations []SnapshotStation `json:"stations" validate:"required,min=1,dive"`
}

type SnapshotEntry struct {
	Identifier        string            `json:"identifier"`
	FromDT            time.Time         `json:"fromDT"`
	ToDT              time.Time         `json:"toDT"`
	AuxiliaryChannels map[string]string `json:"auxiliaryChannels,omitempty"`
}

type SnapshotStationResult struct {
	Machine           string          `json:"machine"`
	Station           string          `json:"station"`
	FromDT            time.Time       `json:"fromDT"`
	ToDT              time.Time       `json:"toDT"`
	IdentifierChannel string          `json:"identifierChannel"`
	TriggerChannel    string          `json:"triggerChannel"`
	Entries           []SnapshotEntry `json:"entries"`
	Status            StationStatus   `json:"status"`
	Error             string          `json:"error,omitempty"`
}

type SnapshotResult struct {
	RequestID string                  `json:"requestId"`
	Status    Status                  `json:"status"`
	Stations  []SnapshotStationResult `json:"stations"`
}
