package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"jjm/models"
)

// Options configures a MemoryStore
type Options struct {
	HistoryCapacity  int
	AlertCapacity    int
	ActivityCapacity int
	Seed             SeedFunc
	Now              func() time.Time
}

// MemoryStore keeps all collections in memory and writes every mutated
// collection back through the KV persister as a whole JSON blob.
type MemoryStore struct {
	kv     KV
	logger *zap.Logger
	opts   Options

	mu         sync.RWMutex
	assets     []models.Asset
	sensors    []*models.Sensor
	byID       map[string]*models.Sensor
	grievances []*models.Grievance
	activities *models.Ring[models.Activity]
	alerts     *models.Ring[models.Alert]
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(kv KV, logger *zap.Logger, opts Options) *MemoryStore {
	if opts.HistoryCapacity < 1 {
		opts.HistoryCapacity = models.DefaultHistoryCapacity
	}
	if opts.AlertCapacity < 1 {
		opts.AlertCapacity = models.DefaultAlertCapacity
	}
	if opts.ActivityCapacity < 1 {
		opts.ActivityCapacity = models.DefaultActivityCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Seed == nil {
		opts.Seed = func(time.Time) Dataset { return Dataset{} }
	}
	return &MemoryStore{
		kv:         kv,
		logger:     logger,
		opts:       opts,
		byID:       make(map[string]*models.Sensor),
		activities: models.NewRing[models.Activity](opts.ActivityCapacity),
		alerts:     models.NewRing[models.Alert](opts.AlertCapacity),
	}
}

func (s *MemoryStore) Init(ctx context.Context) error {
	_, err := s.kv.Get(ctx, KeyInitialized)
	if errors.Is(err, ErrKeyNotFound) {
		s.logger.Info("No persisted state found, seeding mock data")
		return s.Reset(ctx)
	}
	if err != nil {
		return eris.Wrap(err, "store: read initialized flag")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	assets, err := loadCollection[models.Asset](ctx, s, KeyAssets)
	if err != nil {
		return err
	}
	sensors, err := loadCollection[*models.Sensor](ctx, s, KeySensors)
	if err != nil {
		return err
	}
	grievances, err := loadCollection[*models.Grievance](ctx, s, KeyGrievances)
	if err != nil {
		return err
	}
	activities, err := loadCollection[models.Activity](ctx, s, KeyActivities)
	if err != nil {
		return err
	}
	alerts, err := loadCollection[models.Alert](ctx, s, KeyAlerts)
	if err != nil {
		return err
	}

	s.assets = assets
	s.grievances = grievances
	s.activities = ringFromNewest(s.opts.ActivityCapacity, activities)
	s.alerts = ringFromNewest(s.opts.AlertCapacity, alerts)

	if len(sensors) == 0 {
		s.logger.Warn("No sensors in persisted state, regenerating")
		sensors = s.opts.Seed(s.opts.Now()).Sensors
		s.setSensors(sensors)
		if err := s.persist(ctx, KeySensors, s.sensors); err != nil {
			return err
		}
	} else {
		s.setSensors(sensors)
	}

	s.logger.Info("Loaded persisted state",
		zap.Int("assets", len(s.assets)),
		zap.Int("sensors", len(s.sensors)),
		zap.Int("grievances", len(s.grievances)),
		zap.Int("activities", s.activities.Len()),
		zap.Int("alerts", s.alerts.Len()))
	return nil
}

// loadCollection decodes one persisted collection. Absent keys yield an
// empty collection. A blob that fails to decode is discarded whole, never
// partially applied.
func loadCollection[T any](ctx context.Context, s *MemoryStore, key string) ([]T, error) {
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: load %s", key)
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		s.logger.Warn("Discarding unreadable persisted collection",
			zap.String("key", key),
			zap.Error(err))
		return nil, nil
	}
	return items, nil
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	data := s.opts.Seed(s.opts.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.assets = data.Assets
	s.setSensors(data.Sensors)
	s.grievances = data.Grievances
	s.activities = ringFromNewest(s.opts.ActivityCapacity, data.Activities)
	s.alerts = ringFromNewest(s.opts.AlertCapacity, data.Alerts)

	if err := s.persistAll(ctx); err != nil {
		return err
	}
	return eris.Wrap(s.kv.Put(ctx, KeyInitialized, []byte("true")), "store: set initialized flag")
}

func (s *MemoryStore) setSensors(sensors []*models.Sensor) {
	sort.Slice(sensors, func(i, j int) bool { return sensors[i].ID < sensors[j].ID })
	s.sensors = sensors
	s.byID = make(map[string]*models.Sensor, len(sensors))
	for _, sensor := range sensors {
		if sensor.History == nil {
			sensor.History = models.NewRing[models.Reading](s.opts.HistoryCapacity)
		} else {
			sensor.History.Resize(s.opts.HistoryCapacity)
		}
		s.byID[sensor.ID] = sensor
	}
}

func (s *MemoryStore) persistAll(ctx context.Context) error {
	for key, v := range map[string]interface{}{
		KeyAssets:     s.assets,
		KeySensors:    s.sensors,
		KeyGrievances: s.grievances,
		KeyActivities: s.activities.Newest(0),
		KeyAlerts:     s.alerts.Newest(0),
	} {
		if err := s.persist(ctx, key, v); err != nil {
			return err
		}
	}
	return nil
}

// persist writes one collection. The caller holds the lock.
func (s *MemoryStore) persist(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "store: marshal %s", key)
	}
	if err := s.kv.Put(ctx, key, data); err != nil {
		s.logger.Error("Failed to persist collection", zap.String("key", key), zap.Error(err))
		return eris.Wrapf(err, "store: persist %s", key)
	}
	return nil
}

func (s *MemoryStore) Snapshot() Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := Dataset{
		Assets:     append([]models.Asset(nil), s.assets...),
		Sensors:    make([]*models.Sensor, len(s.sensors)),
		Grievances: make([]*models.Grievance, len(s.grievances)),
		Activities: s.activities.Newest(0),
		Alerts:     s.alerts.Newest(0),
	}
	for i, sensor := range s.sensors {
		d.Sensors[i] = sensor.Clone()
	}
	for i, g := range s.grievances {
		d.Grievances[i] = g.Clone()
	}
	return d
}

func (s *MemoryStore) Sensors(filter models.SensorFilter) []*models.Sensor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Sensor, 0, len(s.sensors))
	for _, sensor := range s.sensors {
		if sensor.Matches(filter) {
			out = append(out, sensor.Clone())
		}
	}
	return out
}

func (s *MemoryStore) Sensor(id string) (*models.Sensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sensor, ok := s.byID[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "sensor %s", id)
	}
	return sensor.Clone(), nil
}

func (s *MemoryStore) Regions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]struct{})
	for _, sensor := range s.sensors {
		set[sensor.Region] = struct{}{}
	}
	return sortedKeys(set)
}

// Areas lists the distinct areas of a region, or of every region when empty
func (s *MemoryStore) Areas(region string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]struct{})
	for _, sensor := range s.sensors {
		if region == "" || sensor.Region == region {
			set[sensor.Area] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func (s *MemoryStore) UpdateSensors(ctx context.Context, fn func(sensors []*models.Sensor) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(s.sensors); err != nil {
		return err
	}
	return s.persist(ctx, KeySensors, s.sensors)
}

func (s *MemoryStore) Grievances(filter models.GrievanceFilter) []*models.Grievance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Grievance, 0, len(s.grievances))
	for _, g := range s.grievances {
		if g.Matches(filter) {
			out = append(out, g.Clone())
		}
	}
	return out
}

func (s *MemoryStore) Grievance(id string) (*models.Grievance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.grievanceIndex(id); i >= 0 {
		return s.grievances[i].Clone(), nil
	}
	return nil, eris.Wrapf(ErrNotFound, "grievance %s", id)
}

func (s *MemoryStore) grievanceIndex(id string) int {
	for i, g := range s.grievances {
		if g.ID == id {
			return i
		}
	}
	return -1
}

// CreateGrievance stores g as the newest grievance, assigning the next
// GRVnnnn id when g has none.
func (s *MemoryStore) CreateGrievance(ctx context.Context, g *models.Grievance) (*models.Grievance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g = g.Clone()
	if g.ID == "" {
		g.ID = s.nextGrievanceID()
	} else if s.grievanceIndex(g.ID) >= 0 {
		return nil, eris.Wrapf(ErrInvalidInput, "grievance %s already exists", g.ID)
	}

	s.grievances = append([]*models.Grievance{g}, s.grievances...)
	if err := s.persist(ctx, KeyGrievances, s.grievances); err != nil {
		return g.Clone(), err
	}
	return g.Clone(), nil
}

func (s *MemoryStore) nextGrievanceID() string {
	highest := 0
	for _, g := range s.grievances {
		if n, err := strconv.Atoi(strings.TrimPrefix(g.ID, "GRV")); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("GRV%04d", highest+1)
}

func (s *MemoryStore) UpdateGrievance(ctx context.Context, id string, fn func(g *models.Grievance) error) (*models.Grievance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.grievanceIndex(id)
	if i < 0 {
		return nil, eris.Wrapf(ErrNotFound, "grievance %s", id)
	}

	updated := s.grievances[i].Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	s.grievances[i] = updated

	if err := s.persist(ctx, KeyGrievances, s.grievances); err != nil {
		return updated.Clone(), err
	}
	return updated.Clone(), nil
}

func (s *MemoryStore) Assets() []models.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Asset(nil), s.assets...)
}

// Alerts returns up to limit alerts, newest first. limit <= 0 returns all.
func (s *MemoryStore) Alerts(limit int) []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alerts.Newest(limit)
}

func (s *MemoryStore) AddAlerts(ctx context.Context, alerts ...models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range alerts {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.Timestamp.IsZero() {
			a.Timestamp = s.opts.Now()
		}
		s.alerts.Push(a)
	}
	return s.persist(ctx, KeyAlerts, s.alerts.Newest(0))
}

// Activities returns up to limit activities, newest first. limit <= 0 returns all.
func (s *MemoryStore) Activities(limit int) []models.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activities.Newest(limit)
}

func (s *MemoryStore) AddActivity(ctx context.Context, a models.Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = s.opts.Now()
	}
	if a.Icon == "" {
		a.Icon, a.Color = models.ActivityStyle(a.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.activities.Push(a)
	return s.persist(ctx, KeyActivities, s.activities.Newest(0))
}

// ringFromNewest builds a ring from a newest-first slice
func ringFromNewest[T any](capacity int, newestFirst []T) *models.Ring[T] {
	r := models.NewRing[T](capacity)
	for i := len(newestFirst) - 1; i >= 0; i-- {
		r.Push(newestFirst[i])
	}
	return r
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
