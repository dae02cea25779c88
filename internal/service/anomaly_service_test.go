package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetpulse-backend/config"
	"fleetpulse-backend/internal/model"
)

var anomalyTestNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestAnomalyService(logRepo *fakeLogRepo, deviceRepo *fakeDeviceRepo, anomalyRepo *fakeAnomalyRepo) *anomalyService {
	return &anomalyService{
		logRepo:     logRepo,
		deviceRepo:  deviceRepo,
		anomalyRepo: anomalyRepo,
		cfg: config.AnalysisConfig{
			AnomalyLogWindow:  20,
			HealthLogWindow:   10,
			SpikeMultiplier:   2.0,
			SilenceMultiplier: 3.0,
			VolumeSigma:       3.0,
			VolumeDays:        7,
			TopN:              3,
		},
		now: func() time.Time { return anomalyTestNow },
	}
}

// buildLogContent produces raw log text with the given number of error and
// info lines, all errors sharing one template.
func buildLogContent(errorLines, infoLines int) string {
	lines := make([]string, 0, errorLines+infoLines)
	for i := 0; i < errorLines; i++ {
		lines = append(lines, "ERROR checksum mismatch detected")
	}
	for i := 0; i < infoLines; i++ {
		lines = append(lines, "subsystem nominal")
	}
	return strings.Join(lines, "\n")
}

func TestAnalyzeLogFirstLogNeverFires(t *testing.T) {
	logRepo := newFakeLogRepo()
	anomalyRepo := newFakeAnomalyRepo()
	svc := newTestAnomalyService(logRepo, newFakeDeviceRepo(), anomalyRepo)

	entry := &model.LogEntry{
		ID:       "log-1",
		DeviceID: "dev-1",
		Content:  buildLogContent(10, 0),
	}

	signals, err := svc.AnalyzeLog(context.Background(), entry)
	require.NoError(t, err)
	assert.Empty(t, signals)
	assert.Empty(t, anomalyRepo.created)
}

func TestAnalyzeLogDetectsErrorSpike(t *testing.T) {
	logRepo := newFakeLogRepo()
	anomalyRepo := newFakeAnomalyRepo()
	svc := newTestAnomalyService(logRepo, newFakeDeviceRepo(), anomalyRepo)

	entry := &model.LogEntry{
		ID:       "log-new",
		DeviceID: "dev-1",
		TenantID: "tenant-1",
		Content:  buildLogContent(6, 14), // 30% error rate
	}

	// History averages a 5% error rate. The new entry is also in the
	// stored set and must be excluded from its own baseline.
	history := []model.LogEntry{*entry}
	for i := 0; i < 4; i++ {
		history = append(history, model.LogEntry{
			ID:       "log-old",
			DeviceID: "dev-1",
			Content:  buildLogContent(1, 19),
		})
	}
	logRepo.recent["dev-1"] = history

	signals, err := svc.AnalyzeLog(context.Background(), entry)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	signal := signals[0]
	assert.Equal(t, model.AnomalyTypeErrorSpike, signal.Type)
	assert.Equal(t, model.SeverityHigh, signal.Severity)
	assert.Equal(t, "dev-1", signal.DeviceID)
	assert.Equal(t, "tenant-1", signal.TenantID)
	assert.Equal(t, "log-new", signal.LogID)
	assert.Equal(t, "Error rate 30.0% is 6.0x the historical average of 5.0%", signal.Message)
	assert.False(t, signal.Resolved)
	assert.Equal(t, anomalyTestNow, signal.CreatedAt)
	assert.NotEmpty(t, signal.ID)
	assert.Contains(t, signal.Details, "magnitude")

	require.Len(t, anomalyRepo.created, 1)
	assert.Equal(t, signal.ID, anomalyRepo.created[0].ID)
}

func TestAnalyzeLogDetectsNewErrorPattern(t *testing.T) {
	logRepo := newFakeLogRepo()
	anomalyRepo := newFakeAnomalyRepo()
	svc := newTestAnomalyService(logRepo, newFakeDeviceRepo(), anomalyRepo)

	logRepo.recent["dev-1"] = []model.LogEntry{
		{ID: "old-1", DeviceID: "dev-1", Content: buildLogContent(1, 3)},
		{ID: "old-2", DeviceID: "dev-1", Content: buildLogContent(1, 3)},
	}

	// One known error, one novel template repeated twice, three info
	// lines. The error rate matches history so only the pattern fires,
	// and the repeated novel line counts once.
	entry := &model.LogEntry{
		ID:       "log-new",
		DeviceID: "dev-1",
		Content: strings.Join([]string{
			"ERROR checksum mismatch detected",
			"ERROR flux capacitor overload",
			"ERROR flux capacitor overload",
			"subsystem nominal",
			"subsystem nominal",
			"subsystem nominal",
		}, "\n"),
	}

	signals, err := svc.AnalyzeLog(context.Background(), entry)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	signal := signals[0]
	assert.Equal(t, model.AnomalyTypeNewPattern, signal.Type)
	assert.Equal(t, model.SeverityMedium, signal.Severity)
	assert.Equal(t, "1 previously unseen error pattern(s) detected, first: ERROR flux capacitor overload", signal.Message)
	assert.Contains(t, signal.Details, "flux capacitor")
}

func TestAnalyzeLogNewPatternNeedsTwoPriorLogs(t *testing.T) {
	logRepo := newFakeLogRepo()
	anomalyRepo := newFakeAnomalyRepo()
	svc := newTestAnomalyService(logRepo, newFakeDeviceRepo(), anomalyRepo)

	logRepo.recent["dev-1"] = []model.LogEntry{
		{ID: "old-1", DeviceID: "dev-1", Content: buildLogContent(1, 3)},
	}
	entry := &model.LogEntry{
		ID:       "log-new",
		DeviceID: "dev-1",
		Content:  "ERROR flux capacitor overload\nsubsystem nominal\nsubsystem nominal\nsubsystem nominal",
	}

	signals, err := svc.AnalyzeLog(context.Background(), entry)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestCheckDeviceSilence(t *testing.T) {
	logRepo := newFakeLogRepo()
	anomalyRepo := newFakeAnomalyRepo()
	deviceRepo := newFakeDeviceRepo(
		model.Device{ID: "quiet", TenantID: "tenant-1"},
		model.Device{ID: "chatty", TenantID: "tenant-1"},
		model.Device{ID: "sparse", TenantID: "tenant-1"},
	)
	svc := newTestAnomalyService(logRepo, deviceRepo, anomalyRepo)

	hoursAgo := func(h int) time.Time { return anomalyTestNow.Add(-time.Duration(h) * time.Hour) }

	// Cadence 10h, last upload 40h ago: 40h > 3x10h, overdue.
	logRepo.uploadTimes["quiet"] = []time.Time{hoursAgo(80), hoursAgo(70), hoursAgo(60), hoursAgo(50), hoursAgo(40)}
	// Same cadence but last upload 5h ago: within tolerance.
	logRepo.uploadTimes["chatty"] = []time.Time{hoursAgo(35), hoursAgo(25), hoursAgo(15), hoursAgo(5)}
	// A single upload gives no cadence to compare against.
	logRepo.uploadTimes["sparse"] = []time.Time{hoursAgo(10)}

	signals, err := svc.CheckDeviceSilence(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, signals, 1)

	signal := signals[0]
	assert.Equal(t, "quiet", signal.DeviceID)
	assert.Equal(t, model.AnomalyTypeDeviceSilent, signal.Type)
	assert.Equal(t, model.SeverityHigh, signal.Severity)
	assert.Equal(t, "Device is 30 hour(s) overdue, expected upload cadence is about 10 hour(s)", signal.Message)
	assert.Empty(t, signal.LogID)
}

func TestCheckDeviceSilenceLongSilentDevice(t *testing.T) {
	logRepo := newFakeLogRepo()
	anomalyRepo := newFakeAnomalyRepo()
	deviceRepo := newFakeDeviceRepo(
		model.Device{ID: "dead", TenantID: "tenant-1"},
		model.Device{ID: "lonely", TenantID: "tenant-1"},
	)
	svc := newTestAnomalyService(logRepo, deviceRepo, anomalyRepo)

	daysAgo := func(d int) time.Time { return anomalyTestNow.Add(-time.Duration(d) * 24 * time.Hour) }

	// Both uploads predate the cadence lookback entirely; the detector must
	// still judge the 10-day cadence against 40 days of silence.
	logRepo.uploadTimes["dead"] = []time.Time{daysAgo(50), daysAgo(40)}
	logRepo.recent["dead"] = []model.LogEntry{
		{ID: "log-2", DeviceID: "dead", UploadedAt: daysAgo(40)},
		{ID: "log-1", DeviceID: "dead", UploadedAt: daysAgo(50)},
	}

	// A single lifetime upload still gives no cadence to compare against.
	logRepo.uploadTimes["lonely"] = []time.Time{daysAgo(45)}
	logRepo.recent["lonely"] = []model.LogEntry{
		{ID: "log-3", DeviceID: "lonely", UploadedAt: daysAgo(45)},
	}

	signals, err := svc.CheckDeviceSilence(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, signals, 1)

	signal := signals[0]
	assert.Equal(t, "dead", signal.DeviceID)
	assert.Equal(t, model.AnomalyTypeDeviceSilent, signal.Type)
	assert.Equal(t, model.SeverityHigh, signal.Severity)
	assert.Equal(t, "Device is 720 hour(s) overdue, expected upload cadence is about 240 hour(s)", signal.Message)
}

func TestAnalyzeLogHistoryWindowExcludesSelfWithoutShrinking(t *testing.T) {
	logRepo := newFakeLogRepo()
	anomalyRepo := newFakeAnomalyRepo()
	svc := newTestAnomalyService(logRepo, newFakeDeviceRepo(), anomalyRepo)
	svc.cfg.AnomalyLogWindow = 2

	entry := &model.LogEntry{
		ID:       "log-new",
		DeviceID: "dev-1",
		Content:  buildLogContent(3, 2), // 60% error rate
	}

	// The stored set holds the new log plus two priors. With the window at
	// two, both priors must still count: the baseline is then 25% and the
	// spike fires. Losing the oldest prior to the self row would leave a
	// 50% baseline and no spike.
	logRepo.recent["dev-1"] = []model.LogEntry{
		*entry,
		{ID: "old-1", DeviceID: "dev-1", Content: buildLogContent(1, 1)},
		{ID: "old-2", DeviceID: "dev-1", Content: buildLogContent(0, 4)},
	}

	signals, err := svc.AnalyzeLog(context.Background(), entry)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, model.AnomalyTypeErrorSpike, signals[0].Type)
	assert.Equal(t, "Error rate 60.0% is 2.4x the historical average of 25.0%", signals[0].Message)
}

func TestCheckVolumeAnomaly(t *testing.T) {
	logRepo := newFakeLogRepo()
	anomalyRepo := newFakeAnomalyRepo()
	deviceRepo := newFakeDeviceRepo(
		model.Device{ID: "bursty", TenantID: "tenant-1"},
		model.Device{ID: "steady", TenantID: "tenant-1"},
		model.Device{ID: "young", TenantID: "tenant-1"},
	)
	svc := newTestAnomalyService(logRepo, deviceRepo, anomalyRepo)

	startOfToday := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	dayUploads := func(dayIdx, count int) []time.Time {
		times := make([]time.Time, count)
		for j := 0; j < count; j++ {
			times[j] = startOfToday.Add(-time.Duration(dayIdx)*24*time.Hour - time.Duration(j+1)*time.Minute)
		}
		return times
	}
	todayUploads := func(count int) []time.Time {
		times := make([]time.Time, count)
		for j := 0; j < count; j++ {
			times[j] = startOfToday.Add(time.Duration(j+1) * time.Minute)
		}
		return times
	}

	// Near-constant baseline, then 30 uploads today.
	for idx, count := range []int{4, 6, 5, 5, 5, 5, 5} {
		logRepo.uploadTimes["bursty"] = append(logRepo.uploadTimes["bursty"], dayUploads(idx, count)...)
	}
	logRepo.uploadTimes["bursty"] = append(logRepo.uploadTimes["bursty"], todayUploads(30)...)

	// Perfectly flat history has zero deviation to measure against.
	for idx := 0; idx < 7; idx++ {
		logRepo.uploadTimes["steady"] = append(logRepo.uploadTimes["steady"], dayUploads(idx, 5)...)
	}
	logRepo.uploadTimes["steady"] = append(logRepo.uploadTimes["steady"], todayUploads(5)...)

	// Too little total history to establish a baseline.
	logRepo.uploadTimes["young"] = append(logRepo.uploadTimes["young"], todayUploads(3)...)

	signals, err := svc.CheckVolumeAnomaly(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, signals, 1)

	signal := signals[0]
	assert.Equal(t, "bursty", signal.DeviceID)
	assert.Equal(t, model.AnomalyTypeVolumeAnomaly, signal.Type)
	assert.Equal(t, model.SeverityMedium, signal.Severity)
	assert.Contains(t, signal.Message, "Upload volume today (30)")
	assert.Contains(t, signal.Message, "above normal")
}

func TestAnalyzeLogSwallowsPersistFailure(t *testing.T) {
	logRepo := newFakeLogRepo()
	anomalyRepo := newFakeAnomalyRepo()
	anomalyRepo.createErr = assert.AnError
	svc := newTestAnomalyService(logRepo, newFakeDeviceRepo(), anomalyRepo)

	entry := &model.LogEntry{ID: "log-new", DeviceID: "dev-1", Content: buildLogContent(6, 14)}
	history := make([]model.LogEntry, 0, 4)
	for i := 0; i < 4; i++ {
		history = append(history, model.LogEntry{ID: "log-old", DeviceID: "dev-1", Content: buildLogContent(1, 19)})
	}
	logRepo.recent["dev-1"] = history

	signals, err := svc.AnalyzeLog(context.Background(), entry)
	require.NoError(t, err)
	assert.Empty(t, signals)
}
