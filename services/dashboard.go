package services

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"jjm/models"
	"jjm/store"
)

const (
	activityFeedSize = 10
	alertFeedSize    = 8

	feedGrievances         = 5
	feedNonNormalSensors   = 3
	feedCriticalSensors    = 5
	feedHighPriorityIssues = 3

	NoActivitiesMessage = "No recent activities"
	NoAlertsMessage     = "No critical alerts at this time"
)

// DashboardStats are the headline counters
type DashboardStats struct {
	TotalAssets       int                              `json:"total_assets"`
	ActiveSensors     int                              `json:"active_sensors"`
	OpenGrievances    int                              `json:"open_grievances"`
	Anomalies         int                              `json:"anomalies"`
	ResolvedThisMonth int                              `json:"resolved_this_month"`
	OpenByCategory    map[models.GrievanceCategory]int `json:"open_by_category"`
	AvgResolutionHrs  *int                             `json:"avg_resolution_hours"`
	NotificationCount int                              `json:"notification_count"`
}

// ActivityItem is one row of the activity feed
type ActivityItem struct {
	Icon      string    `json:"icon"`
	Color     string    `json:"color"`
	Text      string    `json:"text"`
	Time      string    `json:"time"`
	Timestamp time.Time `json:"timestamp"`
}

type ActivityFeed struct {
	Items   []ActivityItem `json:"items"`
	Message string         `json:"message,omitempty"`
}

// AlertItem is one row of the critical alert feed
type AlertItem struct {
	Type      models.AlertSeverity `json:"type"`
	Icon      string               `json:"icon"`
	Message   string               `json:"message"`
	Value     string               `json:"value"`
	Time      string               `json:"time"`
	Timestamp time.Time            `json:"timestamp"`
}

type AlertFeed struct {
	Items   []AlertItem `json:"items"`
	Message string      `json:"message,omitempty"`
}

// RegionShare is a region's sensor count and share of all sensors
type RegionShare struct {
	Region  string  `json:"region"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

type Distribution struct {
	TotalAssets      int                        `json:"total_assets"`
	TotalSensors     int                        `json:"total_sensors"`
	ActiveGrievances int                        `json:"active_grievances"`
	AssetsByType     map[models.AssetType]int   `json:"assets_by_type"`
	AssetsByStatus   map[models.AssetStatus]int `json:"assets_by_status"`
	SensorsByRegion  []RegionShare              `json:"sensors_by_region"`
}

// StatusSummary counts sensors of one group by status
type StatusSummary struct {
	Key      string `json:"key"`
	Total    int    `json:"total"`
	Normal   int    `json:"normal"`
	Warning  int    `json:"warning"`
	Critical int    `json:"critical"`
}

func (s *StatusSummary) add(status models.SensorStatus) {
	s.Total++
	switch status {
	case models.StatusNormal:
		s.Normal++
	case models.StatusWarning:
		s.Warning++
	case models.StatusCritical:
		s.Critical++
	}
}

type Summary struct {
	SensorsByStatus    map[models.SensorStatus]int          `json:"sensors_by_status"`
	SensorsByType      map[models.SensorType]int            `json:"sensors_by_type"`
	SensorsByRegion    map[string]int                       `json:"sensors_by_region"`
	RegionSummaries    []StatusSummary                      `json:"region_summaries"`
	TypeSummaries      []StatusSummary                      `json:"type_summaries"`
	TypeRegionPivot    map[models.SensorType]map[string]int `json:"type_region_pivot"`
	GrievancesByStatus map[models.GrievanceStatus]int       `json:"grievances_by_status"`
}

// ComputeStats derives the headline counters from a snapshot
func ComputeStats(d store.Dataset, now time.Time) DashboardStats {
	stats := DashboardStats{
		TotalAssets:    len(d.Assets),
		ActiveSensors:  len(d.Sensors),
		OpenByCategory: make(map[models.GrievanceCategory]int),
	}

	criticalAlerts := 0
	for _, a := range d.Alerts {
		if a.Severity == models.AlertCritical {
			criticalAlerts++
		}
	}
	nonNormal := 0
	for _, s := range d.Sensors {
		if s.Status != models.StatusNormal {
			nonNormal++
		}
	}

	for _, c := range models.GrievanceCategories {
		stats.OpenByCategory[c] = 0
	}
	for _, g := range d.Grievances {
		if g.Open() {
			stats.OpenGrievances++
			stats.OpenByCategory[g.Category]++
			continue
		}
		if g.CreatedAt.Year() == now.Year() && g.CreatedAt.Month() == now.Month() {
			stats.ResolvedThisMonth++
		}
	}

	stats.Anomalies = criticalAlerts + nonNormal
	stats.NotificationCount = criticalAlerts + nonNormal + stats.OpenGrievances
	if hours, ok := AverageResolutionHours(d.Grievances); ok {
		stats.AvgResolutionHrs = &hours
	}
	return stats
}

// AverageResolutionHours averages first-to-last timeline spans over all
// resolved grievances. Resolved grievances with a single timeline entry
// count toward the denominator with zero duration.
func AverageResolutionHours(grievances []*models.Grievance) (int, bool) {
	var total time.Duration
	resolved := 0
	for _, g := range grievances {
		if g.Status != models.GrievanceResolved {
			continue
		}
		resolved++
		if d, ok := g.ResolutionDuration(); ok {
			total += d
		}
	}
	if resolved == 0 {
		return 0, false
	}
	avg := float64(total.Milliseconds()) / float64(resolved)
	return int(math.Round(avg / float64(time.Hour/time.Millisecond))), true
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// RelativeTime renders t relative to now, falling back to a d/m/yyyy date
// beyond a week.
func RelativeTime(t, now time.Time) string {
	diff := now.Sub(t)
	mins := int(math.Floor(diff.Minutes()))
	hours := mins / 60
	days := hours / 24

	switch {
	case mins < 1:
		return "Just now"
	case mins < 60:
		return plural(mins, "minute")
	case hours < 24:
		return plural(hours, "hour")
	case days < 7:
		return plural(days, "day")
	}
	return t.Format("2/1/2006")
}

var grievanceIcons = map[models.GrievanceCategory]string{
	models.CategoryLeakage:  "fa-tint",
	models.CategoryNoWater:  "fa-water",
	models.CategoryQuality:  "fa-vial",
	models.CategoryBilling:  "fa-file-invoice-dollar",
	models.CategoryPressure: "fa-gauge-high",
}

var grievanceColors = map[models.GrievanceStatus]string{
	models.GrievanceRegistered: "info",
	models.GrievanceAssigned:   "warning",
	models.GrievanceInProgress: "warning",
	models.GrievanceResolved:   "success",
}

// issue titles used in the alert feed
var grievanceIssueLabels = map[models.GrievanceCategory]string{
	models.CategoryLeakage:  "Water Leakage",
	models.CategoryNoWater:  "No Water Supply",
	models.CategoryQuality:  "Water Quality Issue",
	models.CategoryBilling:  "Billing Issue",
	models.CategoryPressure: "Low Pressure",
}

var sensorTypeInfo = map[models.SensorType][2]string{
	models.SensorFlow:      {"fa-water", "Flow"},
	models.SensorPressure:  {"fa-gauge-high", "Pressure"},
	models.SensorPH:        {"fa-flask", "pH"},
	models.SensorTurbidity: {"fa-eye-dropper", "Turbidity"},
	models.SensorChlorine:  {"fa-vial", "Chlorine"},
	models.SensorLevel:     {"fa-fill-drip", "Level"},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// BuildActivityFeed merges the activity log with recent grievances and
// non-normal sensors, newest first.
func BuildActivityFeed(d store.Dataset, now time.Time) ActivityFeed {
	items := make([]ActivityItem, 0, len(d.Activities)+feedGrievances+feedNonNormalSensors)

	for _, a := range d.Activities {
		items = append(items, ActivityItem{
			Icon:      a.Icon,
			Color:     a.Color,
			Text:      a.Text,
			Time:      RelativeTime(a.Timestamp, now),
			Timestamp: a.Timestamp,
		})
	}

	for i, g := range d.Grievances {
		if i == feedGrievances {
			break
		}
		icon, ok := grievanceIcons[g.Category]
		if !ok {
			icon = "fa-comments"
		}
		color, ok := grievanceColors[g.Status]
		if !ok {
			color = "info"
		}
		items = append(items, ActivityItem{
			Icon:      icon,
			Color:     color,
			Text:      fmt.Sprintf("Grievance %s: %s... - %s", g.ID, truncate(g.Description, 50), g.Location.Address),
			Time:      RelativeTime(g.CreatedAt, now),
			Timestamp: g.CreatedAt,
		})
	}

	added := 0
	for _, s := range d.Sensors {
		if added == feedNonNormalSensors {
			break
		}
		if s.Status == models.StatusNormal {
			continue
		}
		added++
		color, label := "warning", "WARNING"
		if s.Status == models.StatusCritical {
			color, label = "danger", "CRITICAL"
		}
		items = append(items, ActivityItem{
			Icon:      "fa-exclamation-triangle",
			Color:     color,
			Text:      fmt.Sprintf("%s Sensor %s %s - %s", strings.ToUpper(string(s.Type)), s.ID, label, s.Location),
			Time:      RelativeTime(s.LastUpdate, now),
			Timestamp: s.LastUpdate,
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })
	if len(items) > activityFeedSize {
		items = items[:activityFeedSize]
	}

	feed := ActivityFeed{Items: items}
	if len(items) == 0 {
		feed.Message = NoActivitiesMessage
	}
	return feed
}

// BuildAlertFeed merges stored alerts with critical sensors and unresolved
// high priority grievances, newest first.
func BuildAlertFeed(d store.Dataset, now time.Time) AlertFeed {
	items := make([]AlertItem, 0, len(d.Alerts)+feedCriticalSensors+feedHighPriorityIssues)

	for _, a := range d.Alerts {
		items = append(items, AlertItem{
			Type:      a.Severity,
			Icon:      "fa-exclamation-triangle",
			Message:   a.Message,
			Value:     a.Value,
			Time:      RelativeTime(a.Timestamp, now),
			Timestamp: a.Timestamp,
		})
	}

	added := 0
	for _, s := range d.Sensors {
		if added == feedCriticalSensors {
			break
		}
		if s.Status != models.StatusCritical {
			continue
		}
		added++
		info, ok := sensorTypeInfo[s.Type]
		if !ok {
			info = [2]string{"fa-microchip", string(s.Type)}
		}
		items = append(items, AlertItem{
			Type:      models.AlertCritical,
			Icon:      info[0],
			Message:   fmt.Sprintf("%s sensor %s critical at %s", info[1], s.ID, s.Location),
			Value:     models.FormatValue(s.CurrentValue, s.Unit),
			Time:      RelativeTime(s.LastUpdate, now),
			Timestamp: s.LastUpdate,
		})
	}

	added = 0
	for _, g := range d.Grievances {
		if added == feedHighPriorityIssues {
			break
		}
		if g.Priority != models.PriorityHigh || !g.Open() {
			continue
		}
		added++
		label, ok := grievanceIssueLabels[g.Category]
		if !ok {
			label = "Issue"
		}
		items = append(items, AlertItem{
			Type:      models.AlertWarning,
			Icon:      "fa-flag",
			Message:   fmt.Sprintf("%s - %s", label, g.Location.Address),
			Value:     g.ID,
			Time:      RelativeTime(g.CreatedAt, now),
			Timestamp: g.CreatedAt,
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })
	if len(items) > alertFeedSize {
		items = items[:alertFeedSize]
	}

	feed := AlertFeed{Items: items}
	if len(items) == 0 {
		feed.Message = NoAlertsMessage
	}
	return feed
}

// ComputeDistribution counts assets by type and status and sensors by region
func ComputeDistribution(d store.Dataset) Distribution {
	dist := Distribution{
		TotalAssets:     len(d.Assets),
		TotalSensors:    len(d.Sensors),
		AssetsByType:    make(map[models.AssetType]int),
		AssetsByStatus:  make(map[models.AssetStatus]int),
		SensorsByRegion: []RegionShare{},
	}
	for _, t := range models.AssetTypes {
		dist.AssetsByType[t] = 0
	}
	for _, s := range models.AssetStatuses {
		dist.AssetsByStatus[s] = 0
	}
	for _, a := range d.Assets {
		dist.AssetsByType[a.Type]++
		dist.AssetsByStatus[a.Status]++
	}
	for _, g := range d.Grievances {
		if g.Open() {
			dist.ActiveGrievances++
		}
	}

	counts := make(map[string]int)
	var regions []string
	for _, s := range d.Sensors {
		if _, seen := counts[s.Region]; !seen {
			regions = append(regions, s.Region)
		}
		counts[s.Region]++
	}
	sort.Strings(regions)
	for _, r := range regions {
		share := RegionShare{Region: r, Count: counts[r]}
		if dist.TotalSensors > 0 {
			share.Percent = models.Round2(float64(counts[r]) * 100 / float64(dist.TotalSensors))
		}
		dist.SensorsByRegion = append(dist.SensorsByRegion, share)
	}
	return dist
}

// ComputeSummary builds the per-region and per-type status breakdowns
func ComputeSummary(d store.Dataset) Summary {
	sum := Summary{
		SensorsByStatus:    make(map[models.SensorStatus]int),
		SensorsByType:      make(map[models.SensorType]int),
		SensorsByRegion:    make(map[string]int),
		RegionSummaries:    []StatusSummary{},
		TypeSummaries:      []StatusSummary{},
		TypeRegionPivot:    make(map[models.SensorType]map[string]int),
		GrievancesByStatus: make(map[models.GrievanceStatus]int),
	}
	for _, st := range []models.SensorStatus{models.StatusNormal, models.StatusWarning, models.StatusCritical} {
		sum.SensorsByStatus[st] = 0
	}
	for _, st := range models.GrievanceStatuses {
		sum.GrievancesByStatus[st] = 0
	}

	byRegion := make(map[string]*StatusSummary)
	byType := make(map[models.SensorType]*StatusSummary)
	for _, s := range d.Sensors {
		sum.SensorsByStatus[s.Status]++
		sum.SensorsByType[s.Type]++
		sum.SensorsByRegion[s.Region]++

		if byRegion[s.Region] == nil {
			byRegion[s.Region] = &StatusSummary{Key: s.Region}
		}
		byRegion[s.Region].add(s.Status)

		if byType[s.Type] == nil {
			byType[s.Type] = &StatusSummary{Key: string(s.Type)}
		}
		byType[s.Type].add(s.Status)

		if sum.TypeRegionPivot[s.Type] == nil {
			sum.TypeRegionPivot[s.Type] = make(map[string]int)
		}
		sum.TypeRegionPivot[s.Type][s.Region]++
	}

	for _, r := range byRegion {
		sum.RegionSummaries = append(sum.RegionSummaries, *r)
	}
	sort.Slice(sum.RegionSummaries, func(i, j int) bool { return sum.RegionSummaries[i].Key < sum.RegionSummaries[j].Key })
	for _, t := range models.SensorTypes {
		if s, ok := byType[t]; ok {
			sum.TypeSummaries = append(sum.TypeSummaries, *s)
		}
	}

	for _, g := range d.Grievances {
		sum.GrievancesByStatus[g.Status]++
	}
	return sum
}

// DashboardService serves the aggregates over the store's current snapshot
type DashboardService struct {
	store store.Store
	now   func() time.Time
}

func NewDashboardService(st store.Store) *DashboardService {
	return &DashboardService{store: st, now: time.Now}
}

func (s *DashboardService) Stats() DashboardStats {
	return ComputeStats(s.store.Snapshot(), s.now())
}

func (s *DashboardService) Activities() ActivityFeed {
	return BuildActivityFeed(s.store.Snapshot(), s.now())
}

func (s *DashboardService) AlertFeed() AlertFeed {
	return BuildAlertFeed(s.store.Snapshot(), s.now())
}

func (s *DashboardService) Distribution() Distribution {
	return ComputeDistribution(s.store.Snapshot())
}

func (s *DashboardService) Summary() Summary {
	return ComputeSummary(s.store.Snapshot())
}

// SensorHistory returns a sensor's retained readings with summary stats
func (s *DashboardService) SensorHistory(id string) ([]models.Reading, models.HistoryStats, error) {
	sensor, err := s.store.Sensor(id)
	if err != nil {
		return nil, models.HistoryStats{}, err
	}
	readings := sensor.History.Items()
	if readings == nil {
		readings = []models.Reading{}
	}
	return readings, models.ComputeHistoryStats(sensor.CurrentValue, readings), nil
}
