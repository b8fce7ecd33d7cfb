package opcua

import (
	"context"
	"testing"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/historian"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSession struct {
	state   opcua.ConnState
	pages   [][]*ua.DataValue
	status  ua.StatusCode
	nodes   []*ua.HistoryReadValueID
	details []*ua.ReadRawModifiedDetails
}

func (f *fakeSession) HistoryReadRawModified(_ context.Context, nodes []*ua.HistoryReadValueID, details *ua.ReadRawModifiedDetails) (*ua.HistoryReadResponse, error) {
	f.nodes = append(f.nodes, nodes...)
	f.details = append(f.details, details)

	if f.status != ua.StatusOK {
		return &ua.HistoryReadResponse{Results: []*ua.HistoryReadResult{{StatusCode: f.status}}}, nil
	}

	var page []*ua.DataValue
	if len(f.pages) > 0 {
		page, f.pages = f.pages[0], f.pages[1:]
	}
	var continuation []byte
	if len(f.pages) > 0 {
		continuation = []byte("next")
	}

	return &ua.HistoryReadResponse{Results: []*ua.HistoryReadResult{{
		StatusCode:        ua.StatusOK,
		ContinuationPoint: continuation,
		HistoryData:       ua.NewExtensionObject(&ua.HistoryData{DataValues: page}),
	}}}, nil
}

func (f *fakeSession) State() opcua.ConnState {
	return f.state
}

func value(t time.Time, v any) *ua.DataValue {
	return &ua.DataValue{
		EncodingMask:    ua.DataValueValue | ua.DataValueSourceTimestamp,
		Value:           ua.MustVariant(v),
		SourceTimestamp: t,
		Status:          ua.StatusOK,
	}
}

var (
	base    = time.Date(2024, 4, 8, 0, 0, 0, 0, time.UTC)
	channel = domain.NewSignalIdentity("Traceability", "OPC", "OP10.DM")
)

func TestOPCUAHistorian_RangedReadFollowsContinuation(t *testing.T) {
	fake := &fakeSession{pages: [][]*ua.DataValue{
		{value(base.Add(time.Hour), "DM-1")},
		{value(base.Add(2*time.Hour), "DM-2"), value(base.Add(7*time.Hour), "DM-3")},
	}}
	h := newWithSession(fake, 2, zap.NewNop())

	res, err := h.RangedRead(context.Background(), channel, base, base.Add(6*time.Hour), historian.Options{})

	require.NoError(t, err)
	require.Len(t, res.Points, 2)
	assert.Equal(t, "DM-1", res.Points[0].Value)
	assert.Equal(t, "DM-2", res.Points[1].Value)

	require.Len(t, fake.nodes, 2)
	assert.Equal(t, "ns=2;s=OPC.OP10.DM", fake.nodes[0].NodeID.String())
	assert.Equal(t, []byte("next"), fake.nodes[1].ContinuationPoint)
}

func TestOPCUAHistorian_BackwardAndPointInTime(t *testing.T) {
	at := base.Add(3 * time.Hour)

	// назад сервер отдаёт значения в обратном порядке
	fake := &fakeSession{pages: [][]*ua.DataValue{
		{value(at, int32(1)), value(at.Add(-time.Hour), int32(0))},
	}}
	h := newWithSession(fake, 2, zap.NewNop())

	res, err := h.DirectionalRead(context.Background(), channel, at, historian.Backward, 1, historian.Options{})
	require.NoError(t, err)
	require.Len(t, res.Points, 1)
	assert.Equal(t, at, res.Points[0].Time)
	assert.Equal(t, "1", res.Points[0].Value)
	assert.True(t, fake.details[0].StartTime.IsZero())

	fake.pages = [][]*ua.DataValue{{value(at.Add(-time.Hour), "DM-7")}}
	probe := at.Add(-30 * time.Minute)

	pit, err := h.PointInTimeRead(context.Background(), channel, []time.Time{probe}, historian.Options{})
	require.NoError(t, err)
	require.Len(t, pit.Points, 1)
	assert.Equal(t, probe, pit.Points[0].Time)
	assert.Equal(t, "DM-7", pit.Points[0].Value)
}

func TestOPCUAHistorian_NoDataAndFault(t *testing.T) {
	h := newWithSession(&fakeSession{status: ua.StatusBadNoData}, 2, zap.NewNop())

	res, err := h.DirectionalRead(context.Background(), channel, base, historian.Forward, 1, historian.Options{})
	require.NoError(t, err)
	assert.Equal(t, historian.StatusNoValueFound, res.Status)

	h = newWithSession(&fakeSession{status: ua.StatusBadNodeIDUnknown}, 2, zap.NewNop())

	_, err = h.RangedRead(context.Background(), channel, base, base.Add(time.Hour), historian.Options{})
	assert.ErrorIs(t, err, ua.StatusBadNodeIDUnknown)
}

func TestOPCUAHistorian_Ping(t *testing.T) {
	fake := &fakeSession{state: opcua.Connected}
	h := newWithSession(fake, 2, zap.NewNop())

	assert.NoError(t, h.Ping(context.Background()))

	fake.state = opcua.Disconnected
	assert.Error(t, h.Ping(context.Background()))
}

func TestNormalizeSecurity(t *testing.T) {
	assert.Equal(t, "SignAndEncrypt", normalizeSecurityMode("signandencrypt"))
	assert.Equal(t, "None", normalizeSecurityMode(""))
	assert.Equal(t, "Basic256Sha256", normalizeSecurityPolicy("basic256sha256"))
}
