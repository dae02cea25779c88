package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetpulse-backend/config"
	"fleetpulse-backend/internal/model"
)

var healthTestNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type healthFixture struct {
	logRepo      *fakeLogRepo
	deviceRepo   *fakeDeviceRepo
	anomalyRepo  *fakeAnomalyRepo
	firmwareRepo *fakeFirmwareRepo
	healthRepo   *fakeHealthRepo
	historyStore *fakeHistoryStore
	svc          *healthService
}

func newHealthFixture(devices ...model.Device) *healthFixture {
	f := &healthFixture{
		logRepo:      newFakeLogRepo(),
		deviceRepo:   newFakeDeviceRepo(devices...),
		anomalyRepo:  newFakeAnomalyRepo(),
		firmwareRepo: &fakeFirmwareRepo{},
		healthRepo:   newFakeHealthRepo(),
		historyStore: &fakeHistoryStore{},
	}
	f.svc = &healthService{
		deviceRepo:   f.deviceRepo,
		logRepo:      f.logRepo,
		anomalyRepo:  f.anomalyRepo,
		firmwareRepo: f.firmwareRepo,
		healthRepo:   f.healthRepo,
		historyStore: f.historyStore,
		cfg:          config.AnalysisConfig{HealthLogWindow: 10, AnomalyLogWindow: 20},
		now:          func() time.Time { return healthTestNow },
	}
	return f
}

func healthyDevice() model.Device {
	return model.Device{
		ID:              "dev-1",
		TenantID:        "tenant-1",
		Type:            "sensor",
		Status:          model.DeviceStatusOnline,
		FirmwareVersion: "2.1.0",
	}
}

// seedHealthyActivity gives dev-1 a clean regular upload history and a
// current firmware catalog.
func (f *healthFixture) seedHealthyActivity() {
	f.logRepo.recent["dev-1"] = []model.LogEntry{
		{ID: "log-2", DeviceID: "dev-1", Content: "subsystem nominal", UploadedAt: healthTestNow.Add(-1 * time.Hour)},
		{ID: "log-1", DeviceID: "dev-1", Content: "subsystem nominal", UploadedAt: healthTestNow.Add(-2 * time.Hour)},
	}
	f.firmwareRepo.releases = []model.FirmwareRelease{
		{ID: "fw-2", TenantID: "tenant-1", DeviceType: "sensor", Version: "2.1.0"},
		{ID: "fw-1", TenantID: "tenant-1", DeviceType: "sensor", Version: "2.0.0"},
	}
}

func TestComputeHealthHealthyDevice(t *testing.T) {
	f := newHealthFixture(healthyDevice())
	f.seedHealthyActivity()

	record, err := f.svc.ComputeHealth(context.Background(), "dev-1")
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, 100, record.Score)
	assert.Equal(t, model.HealthFactors{
		Recency:          25,
		ErrorRate:        25,
		LogFrequency:     20,
		FirmwareCurrency: 15,
		AnomalyCount:     15,
	}, record.Factors)
	assert.Equal(t, model.TrendStable, record.Trend)
	assert.Equal(t, healthTestNow, record.UpdatedAt)

	stored, err := f.healthRepo.Get(context.Background(), "dev-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 100, stored.Score)

	require.Len(t, f.historyStore.points, 1)
	assert.Equal(t, model.HealthHistoryPoint{DeviceID: "dev-1", Score: 100, Time: healthTestNow}, f.historyStore.points[0])
}

func TestComputeHealthRepeatedRunsAreStable(t *testing.T) {
	f := newHealthFixture(healthyDevice())
	f.seedHealthyActivity()

	first, err := f.svc.ComputeHealth(context.Background(), "dev-1")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.svc.ComputeHealth(context.Background(), "dev-1")
	require.NoError(t, err)
	require.NotNil(t, second)

	// Nothing about the device changed between runs, so the score and
	// factor breakdown must match and each run appends exactly one point.
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Factors, second.Factors)
	assert.Equal(t, first.Trend, second.Trend)
	require.Len(t, f.historyStore.points, 2)
	assert.Equal(t, first.Score, f.historyStore.points[0].Score)
	assert.Equal(t, second.Score, f.historyStore.points[1].Score)
}

func TestComputeHealthUnknownDevice(t *testing.T) {
	f := newHealthFixture()

	record, err := f.svc.ComputeHealth(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.Empty(t, f.healthRepo.records)
	assert.Empty(t, f.historyStore.points)
}

func TestComputeHealthUnresolvedAnomalyPenalty(t *testing.T) {
	f := newHealthFixture(healthyDevice())
	f.seedHealthyActivity()
	f.anomalyRepo.unresolved["dev-1"] = 2

	record, err := f.svc.ComputeHealth(context.Background(), "dev-1")
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, 5, record.Factors.AnomalyCount)
	assert.Equal(t, 90, record.Score)
}

func TestComputeHealthFirmwareCurrency(t *testing.T) {
	tests := []struct {
		name            string
		deviceVersion   string
		expectedFactor  int
		expectedScore   int
		clearedReleases bool
	}{
		{
			name:           "Latest Release",
			deviceVersion:  "2.1.0",
			expectedFactor: 15,
			expectedScore:  100,
		},
		{
			name:           "One Release Behind",
			deviceVersion:  "2.0.0",
			expectedFactor: 8,
			expectedScore:  93,
		},
		{
			name:           "Unknown Version",
			deviceVersion:  "0.9.9-custom",
			expectedFactor: 0,
			expectedScore:  85,
		},
		{
			name:            "No Catalog For Type",
			deviceVersion:   "2.1.0",
			expectedFactor:  15,
			expectedScore:   100,
			clearedReleases: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := healthyDevice()
			device.FirmwareVersion = tt.deviceVersion
			f := newHealthFixture(device)
			f.seedHealthyActivity()
			if tt.clearedReleases {
				f.firmwareRepo.releases = nil
			}

			record, err := f.svc.ComputeHealth(context.Background(), "dev-1")
			require.NoError(t, err)
			require.NotNil(t, record)
			assert.Equal(t, tt.expectedFactor, record.Factors.FirmwareCurrency)
			assert.Equal(t, tt.expectedScore, record.Score)
		})
	}
}

func TestComputeHealthErrorRatePooling(t *testing.T) {
	f := newHealthFixture(healthyDevice())
	f.seedHealthyActivity()
	// One error in five pooled lines: 20% error rate.
	f.logRepo.recent["dev-1"] = []model.LogEntry{
		{
			ID:         "log-1",
			DeviceID:   "dev-1",
			Content:    "ERROR bus fault\nok\nok\nok\nok",
			UploadedAt: healthTestNow.Add(-1 * time.Hour),
		},
	}

	record, err := f.svc.ComputeHealth(context.Background(), "dev-1")
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, 15, record.Factors.ErrorRate)
	// A single recent log gives no cadence to judge, so no frequency penalty.
	assert.Equal(t, 20, record.Factors.LogFrequency)
	assert.Equal(t, 90, record.Score)
}

func TestComputeHealthOfflineRecencyDecay(t *testing.T) {
	lastSeen := healthTestNow.Add(-12 * time.Hour)
	device := healthyDevice()
	device.Status = model.DeviceStatusOffline
	device.LastSeenAt = &lastSeen

	f := newHealthFixture(device)
	f.firmwareRepo.releases = []model.FirmwareRelease{
		{ID: "fw-2", TenantID: "tenant-1", DeviceType: "sensor", Version: "2.1.0"},
	}

	record, err := f.svc.ComputeHealth(context.Background(), "dev-1")
	require.NoError(t, err)
	require.NotNil(t, record)

	// 12h offline decays recency to 25*(1-12/48) = 18.75; no logs at all
	// leaves the error factor whole and halves the frequency factor.
	assert.Equal(t, model.HealthFactors{
		Recency:          19,
		ErrorRate:        25,
		LogFrequency:     10,
		FirmwareCurrency: 15,
		AnomalyCount:     15,
	}, record.Factors)
	assert.Equal(t, 84, record.Score)
}

func TestComputeHealthTrend(t *testing.T) {
	t.Run("Improving", func(t *testing.T) {
		f := newHealthFixture(healthyDevice())
		f.seedHealthyActivity()
		f.historyStore.points = []model.HealthHistoryPoint{
			{DeviceID: "dev-1", Score: 80, Time: healthTestNow.Add(-25 * time.Hour)},
		}

		record, err := f.svc.ComputeHealth(context.Background(), "dev-1")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, model.TrendImproving, record.Trend)
	})

	t.Run("Stable Within Tolerance", func(t *testing.T) {
		f := newHealthFixture(healthyDevice())
		f.seedHealthyActivity()
		f.historyStore.points = []model.HealthHistoryPoint{
			{DeviceID: "dev-1", Score: 98, Time: healthTestNow.Add(-25 * time.Hour)},
		}

		record, err := f.svc.ComputeHealth(context.Background(), "dev-1")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, model.TrendStable, record.Trend)
	})

	t.Run("Degrading", func(t *testing.T) {
		f := newHealthFixture(healthyDevice())
		f.seedHealthyActivity()
		f.anomalyRepo.unresolved["dev-1"] = 3 // drops the score to 85
		f.historyStore.points = []model.HealthHistoryPoint{
			{DeviceID: "dev-1", Score: 95, Time: healthTestNow.Add(-25 * time.Hour)},
		}

		record, err := f.svc.ComputeHealth(context.Background(), "dev-1")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, 85, record.Score)
		assert.Equal(t, model.TrendDegrading, record.Trend)
	})
}

func TestComputeAllHealth(t *testing.T) {
	f := newHealthFixture(
		model.Device{ID: "strong", TenantID: "tenant-1", Status: model.DeviceStatusOnline},
		model.Device{ID: "weak", TenantID: "tenant-1", Status: model.DeviceStatusOffline},
		model.Device{ID: "broken", TenantID: "tenant-1"},
	)
	f.deviceRepo.getErr["broken"] = assert.AnError

	records, err := f.svc.ComputeAllHealth(context.Background(), "tenant-1")
	require.NoError(t, err)

	// The failing device is skipped and the rest come back worst first.
	require.Len(t, records, 2)
	assert.Equal(t, "weak", records[0].DeviceID)
	assert.Equal(t, "strong", records[1].DeviceID)
	assert.LessOrEqual(t, records[0].Score, records[1].Score)
	assert.Len(t, f.historyStore.points, 2)
}
