package service

import (
	"context"
	"errors"
	"time"

	"fleetpulse-backend/internal/model"
)

// In-memory repository fakes shared by the service tests. They implement
// just enough of each repository contract for the services under test.

type fakeLogRepo struct {
	entries     map[string]*model.LogEntry
	recent      map[string][]model.LogEntry
	uploadTimes map[string][]time.Time
	counts      map[string]int64
	merged      map[string]map[string]interface{}
	getErr      error
	mergeErr    error
}

func newFakeLogRepo() *fakeLogRepo {
	return &fakeLogRepo{
		entries:     make(map[string]*model.LogEntry),
		recent:      make(map[string][]model.LogEntry),
		uploadTimes: make(map[string][]time.Time),
		counts:      make(map[string]int64),
		merged:      make(map[string]map[string]interface{}),
	}
}

func (r *fakeLogRepo) GetByID(_ context.Context, id string) (*model.LogEntry, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.entries[id], nil
}

func (r *fakeLogRepo) RecentByDevice(_ context.Context, deviceID string, limit int) ([]model.LogEntry, error) {
	logs := r.recent[deviceID]
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (r *fakeLogRepo) UploadTimesSince(_ context.Context, deviceID string, since time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, t := range r.uploadTimes[deviceID] {
		if !t.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeLogRepo) Count(_ context.Context, deviceID string) (int64, error) {
	if c, ok := r.counts[deviceID]; ok {
		return c, nil
	}
	return int64(len(r.uploadTimes[deviceID])), nil
}

func (r *fakeLogRepo) MergeMetadata(_ context.Context, id string, key string, value interface{}) error {
	if r.mergeErr != nil {
		return r.mergeErr
	}
	if r.merged[id] == nil {
		r.merged[id] = make(map[string]interface{})
	}
	r.merged[id][key] = value
	return nil
}

func (r *fakeLogRepo) Store(_ context.Context, entry *model.LogEntry) error {
	r.entries[entry.ID] = entry
	return nil
}

type fakeDeviceRepo struct {
	devices []model.Device
	getErr  map[string]error
	touched map[string]time.Time
}

func newFakeDeviceRepo(devices ...model.Device) *fakeDeviceRepo {
	return &fakeDeviceRepo{
		devices: devices,
		getErr:  make(map[string]error),
		touched: make(map[string]time.Time),
	}
}

func (r *fakeDeviceRepo) GetByID(_ context.Context, id string) (*model.Device, error) {
	if err := r.getErr[id]; err != nil {
		return nil, err
	}
	for i := range r.devices {
		if r.devices[i].ID == id {
			d := r.devices[i]
			return &d, nil
		}
	}
	return nil, nil
}

func (r *fakeDeviceRepo) List(_ context.Context, tenantID string) ([]model.Device, error) {
	if tenantID == "" {
		return r.devices, nil
	}
	var out []model.Device
	for _, d := range r.devices {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDeviceRepo) TouchLastSeen(_ context.Context, id string, seenAt time.Time) error {
	r.touched[id] = seenAt
	return nil
}

type fakeAnomalyRepo struct {
	created    []model.AnomalySignal
	unresolved map[string]int64
	createErr  error
}

func newFakeAnomalyRepo() *fakeAnomalyRepo {
	return &fakeAnomalyRepo{unresolved: make(map[string]int64)}
}

func (r *fakeAnomalyRepo) Create(_ context.Context, signal *model.AnomalySignal) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.created = append(r.created, *signal)
	return nil
}

func (r *fakeAnomalyRepo) RecentByDevice(_ context.Context, deviceID string, limit int) ([]model.AnomalySignal, error) {
	var out []model.AnomalySignal
	for _, s := range r.created {
		if s.DeviceID == deviceID {
			out = append(out, s)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeAnomalyRepo) UnresolvedCount(_ context.Context, deviceID string) (int64, error) {
	return r.unresolved[deviceID], nil
}

func (r *fakeAnomalyRepo) ListByTenant(_ context.Context, tenantID string, deviceID string, since time.Time, limit int) ([]model.AnomalySignal, error) {
	return nil, errors.New("not implemented in fake")
}

func (r *fakeAnomalyRepo) Resolve(_ context.Context, id string) (bool, error) {
	return false, errors.New("not implemented in fake")
}

type fakeFirmwareRepo struct {
	releases []model.FirmwareRelease
}

func (r *fakeFirmwareRepo) LatestByType(_ context.Context, tenantID string, deviceType string, limit int) ([]model.FirmwareRelease, error) {
	var out []model.FirmwareRelease
	for _, rel := range r.releases {
		if rel.TenantID == tenantID && rel.DeviceType == deviceType {
			out = append(out, rel)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeHealthRepo struct {
	records map[string]*model.HealthRecord
}

func newFakeHealthRepo() *fakeHealthRepo {
	return &fakeHealthRepo{records: make(map[string]*model.HealthRecord)}
}

func (r *fakeHealthRepo) Upsert(_ context.Context, record *model.HealthRecord) error {
	copied := *record
	r.records[record.DeviceID] = &copied
	return nil
}

func (r *fakeHealthRepo) Get(_ context.Context, deviceID string) (*model.HealthRecord, error) {
	return r.records[deviceID], nil
}

type fakeHistoryStore struct {
	points []model.HealthHistoryPoint
}

func (s *fakeHistoryStore) Append(_ context.Context, point model.HealthHistoryPoint) error {
	s.points = append(s.points, point)
	return nil
}

func (s *fakeHistoryStore) ScoreAt(_ context.Context, deviceID string, at time.Time) (int, bool, error) {
	best := -1
	var bestTime time.Time
	for _, p := range s.points {
		if p.DeviceID != deviceID || p.Time.After(at) {
			continue
		}
		if best == -1 || p.Time.After(bestTime) {
			best = p.Score
			bestTime = p.Time
		}
	}
	if best == -1 {
		return 0, false, nil
	}
	return best, true, nil
}
