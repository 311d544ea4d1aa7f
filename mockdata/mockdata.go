// Package mockdata generates the demo dataset: assets, sensors across the
// city's zones, citizen grievances, an activity log and a few alerts.
package mockdata

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"jjm/models"
	"jjm/store"
)

// Rand is the subset of *math/rand.Rand the generator draws from
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// Region groups the areas of one administrative zone
type Region struct {
	Name  string
	Areas []string
}

var Regions = []Region{
	{Name: "North Zone", Areas: []string{"Hebbal", "Yelahanka", "Sahakara Nagar", "RT Nagar"}},
	{Name: "South Zone", Areas: []string{"JP Nagar", "Banashankari", "Jayanagar", "BTM Layout"}},
	{Name: "East Zone", Areas: []string{"Whitefield", "Marathahalli", "Indiranagar", "HSR Layout"}},
	{Name: "West Zone", Areas: []string{"Rajajinagar", "Malleshwaram", "Yeshwanthpur", "Vijayanagar"}},
	{Name: "Central Zone", Areas: []string{"MG Road", "Brigade Road", "Shivajinagar", "Richmond Town"}},
}

const (
	City            = "Bangalore"
	SensorsPerType  = 25
	HistoryPoints   = 20
	HistoryInterval = 3 * time.Minute
	GrievanceCount  = 30
	ActivityCount   = 15
	EngineerCount   = 5
	grievanceWindow = 30 // days
	activityWindow  = 5  // days
	warningShare    = 0.07
	criticalShare   = 0.03
)

var (
	locations = []string{
		"MG Road", "Brigade Road", "Indiranagar", "Koramangala", "Jayanagar",
		"Whitefield", "Electronic City", "HSR Layout", "BTM Layout", "Malleshwaram",
		"Rajajinagar", "Yeshwanthpur", "Hebbal", "Marathahalli", "Bellandur",
		"Sarjapur Road", "Bannerghatta Road", "JP Nagar", "Banashankari", "Vijayanagar",
	}
	citizens = []string{
		"Rajesh Kumar", "Priya Sharma", "Amit Patel", "Sunita Devi", "Ramesh Reddy",
		"Lakshmi Iyer", "Vijay Singh", "Meena Gupta", "Arun Kumar", "Kavita Desai",
	}
	descriptions = map[models.GrievanceCategory]string{
		models.CategoryLeakage:  "Water leaking from pipeline near the main road",
		models.CategoryNoWater:  "No water supply for the past 2 days",
		models.CategoryQuality:  "Water quality is poor, appears muddy/contaminated",
		models.CategoryBilling:  "Incorrect water bill received this month",
		models.CategoryPressure: "Very low water pressure, difficult to use",
	}
)

// Generator produces seeded mock data. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd Rand
}

func New(rnd Rand) *Generator {
	return &Generator{rnd: rnd}
}

// Dataset builds a complete dataset relative to now. It matches store.SeedFunc.
func (g *Generator) Dataset(now time.Time) store.Dataset {
	g.mu.Lock()
	defer g.mu.Unlock()

	return store.Dataset{
		Assets:     g.assets(now),
		Sensors:    g.sensors(now),
		Grievances: g.grievances(now),
		Activities: g.activities(now),
		Alerts:     Alerts(now),
	}
}

// Sensors builds only the sensor fleet
func (g *Generator) Sensors(now time.Time) []*models.Sensor {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sensors(now)
}

func (g *Generator) between(lo, hi float64) float64 {
	return lo + g.rnd.Float64()*(hi-lo)
}

func (g *Generator) pick(n int) int {
	return g.rnd.Intn(n)
}

func (g *Generator) location() string {
	return locations[g.pick(len(locations))] + ", " + City
}

func (g *Generator) point() models.Coordinates {
	return models.Coordinates{
		Lat: round6(12.90 + g.rnd.Float64()*0.15),
		Lng: round6(77.55 + g.rnd.Float64()*0.15),
	}
}

func (g *Generator) date(startYear, endYear int) time.Time {
	start := time.Date(startYear, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(endYear, 12, 31, 0, 0, 0, 0, time.UTC)
	offset := time.Duration(g.rnd.Float64() * float64(end.Sub(start)))
	return start.Add(offset).Truncate(24 * time.Hour)
}

// recent returns a time within the last `days` days at a random hour and
// minute, never after now
func (g *Generator) recent(now time.Time, days int) time.Time {
	d := now.AddDate(0, 0, -g.pick(days))
	t := time.Date(d.Year(), d.Month(), d.Day(), g.pick(24), g.pick(60), 0, 0, now.Location())
	if t.After(now) {
		return now
	}
	return t
}

func (g *Generator) engineer() string {
	return fmt.Sprintf("Engineer %d", g.pick(EngineerCount)+1)
}

func (g *Generator) assets(now time.Time) []models.Asset {
	var assets []models.Asset

	for i := 1; i <= 30; i++ {
		start := g.point()
		end := models.Coordinates{
			Lat: start.Lat + (g.rnd.Float64()*0.02 - 0.01),
			Lng: start.Lng + (g.rnd.Float64()*0.02 - 0.01),
		}
		assets = append(assets, models.Asset{
			ID:          fmt.Sprintf("P%03d", i),
			Name:        fmt.Sprintf("Pipeline %d - %s", i, g.location()),
			Type:        models.AssetPipeline,
			Coordinates: []models.Coordinates{start, end},
			DiameterMM:  []int{150, 200, 300, 400, 600}[g.pick(5)],
			Material:    []string{"HDPE", "PVC", "GI", "DI"}[g.pick(4)],
			LengthM:     g.pick(5000) + 500,
			Status:      []models.AssetStatus{models.AssetOperational, models.AssetMaintenance, models.AssetCritical}[g.pick(3)],
			InstallDate: g.date(2015, 2023),
		})
	}

	for i := 1; i <= 15; i++ {
		capacity := []float64{50000, 100000, 200000, 500000}[g.pick(4)]
		assets = append(assets, models.Asset{
			ID:           fmt.Sprintf("T%03d", i),
			Name:         fmt.Sprintf("Tank %d - %s", i, g.location()),
			Type:         models.AssetTank,
			Coordinates:  []models.Coordinates{g.point()},
			Capacity:     capacity,
			CurrentLevel: math.Floor(g.rnd.Float64()*capacity*0.9) + capacity*0.1,
			Material:     []string{"Concrete", "Steel", "FRP"}[g.pick(3)],
			Status:       []models.AssetStatus{models.AssetOperational, models.AssetMaintenance}[g.pick(2)],
			InstallDate:  g.date(2010, 2022),
		})
	}

	for i := 1; i <= 10; i++ {
		assets = append(assets, models.Asset{
			ID:          fmt.Sprintf("PS%03d", i),
			Name:        fmt.Sprintf("Pumping Station %d - %s", i, g.location()),
			Type:        models.AssetPump,
			Coordinates: []models.Coordinates{g.point()},
			Capacity:    float64(g.pick(500) + 100),
			PowerKW:     g.pick(150) + 50,
			Status:      []models.AssetStatus{models.AssetOperational, models.AssetOffline}[g.pick(2)],
			InstallDate: g.date(2012, 2023),
		})
	}

	for i := 1; i <= 8; i++ {
		assets = append(assets, models.Asset{
			ID:          fmt.Sprintf("WS%03d", i),
			Name:        fmt.Sprintf("Water Source %d - %s", i, g.location()),
			Type:        models.AssetSource,
			Coordinates: []models.Coordinates{g.point()},
			SourceKind:  []string{"Borewell", "River", "Lake", "Reservoir"}[g.pick(4)],
			Capacity:    float64(g.pick(1000000) + 100000),
			Status:      models.AssetOperational,
			InstallDate: g.date(2005, 2020),
		})
	}

	return assets
}

// initialValue draws a starting value with a 90/7/3 normal/warning/critical mix
func (g *Generator) initialValue(spec models.TypeSpec) float64 {
	r := g.rnd.Float64()
	above := g.rnd.Float64() > 0.5
	switch {
	case r > 1-criticalShare:
		if above {
			return g.between(spec.HighCriticalCutoff(), spec.Max)
		}
		return g.between(spec.Min, spec.LowCriticalCutoff())
	case r > 1-criticalShare-warningShare:
		if above || spec.LowCriticalCutoff() >= spec.NormalLo {
			return g.between(spec.NormalHi, spec.HighCriticalCutoff())
		}
		return g.between(spec.LowCriticalCutoff(), spec.NormalLo)
	default:
		return g.between(spec.NormalLo, spec.NormalHi)
	}
}

func (g *Generator) sensors(now time.Time) []*models.Sensor {
	sensors := make([]*models.Sensor, 0, len(models.SensorTypes)*SensorsPerType)
	id := 1

	for _, st := range models.SensorTypes {
		spec, _ := models.SpecFor(st)
		for j := 0; j < SensorsPerType; j++ {
			region := Regions[g.pick(len(Regions))]
			area := region.Areas[g.pick(len(region.Areas))]
			value := models.Round2(g.initialValue(spec))

			history := models.NewRing[models.Reading](models.DefaultHistoryCapacity)
			for i := HistoryPoints; i > 0; i-- {
				history.Push(models.Reading{
					Timestamp: now.Add(-time.Duration(i) * HistoryInterval),
					Value:     models.Round2(g.between(spec.NormalLo, spec.NormalHi)),
				})
			}

			sensors = append(sensors, &models.Sensor{
				ID:           fmt.Sprintf("S%04d", id),
				Name:         fmt.Sprintf("%s Sensor %d", strings.ToUpper(string(st)), id),
				Type:         st,
				Region:       region.Name,
				Area:         area,
				Location:     area + ", " + City,
				Coordinates:  g.point(),
				CurrentValue: value,
				Unit:         spec.Unit,
				ThresholdMin: spec.NormalLo,
				ThresholdMax: spec.NormalHi,
				Status:       models.Classify(spec, value),
				LastUpdate:   now,
				History:      history,
			})
			id++
		}
	}

	return sensors
}

func (g *Generator) grievances(now time.Time) []*models.Grievance {
	grievances := make([]*models.Grievance, 0, GrievanceCount)

	for i := 1; i <= GrievanceCount; i++ {
		category := models.GrievanceCategories[g.pick(len(models.GrievanceCategories))]
		status := models.GrievanceStatuses[g.pick(len(models.GrievanceStatuses))]
		priority := []models.Priority{models.PriorityHigh, models.PriorityMedium, models.PriorityLow}[g.pick(3)]
		created := g.recent(now, grievanceWindow)

		timeline := []models.TimelineEvent{{Status: models.GrievanceRegistered, Timestamp: created, By: "System"}}
		if status != models.GrievanceRegistered {
			timeline = append(timeline, models.TimelineEvent{Status: models.GrievanceAssigned, Timestamp: created.Add(30 * time.Minute), By: "Admin"})
		}
		if status == models.GrievanceInProgress || status == models.GrievanceResolved {
			timeline = append(timeline, models.TimelineEvent{Status: models.GrievanceInProgress, Timestamp: created.Add(120 * time.Minute), By: g.engineer()})
		}
		if status == models.GrievanceResolved {
			timeline = append(timeline, models.TimelineEvent{Status: models.GrievanceResolved, Timestamp: created.Add(1440 * time.Minute), By: g.engineer()})
		}

		grievance := &models.Grievance{
			ID:          fmt.Sprintf("GRV%04d", i),
			CitizenName: citizens[g.pick(len(citizens))],
			Phone:       fmt.Sprintf("98%08d", g.pick(100000000)),
			Category:    category,
			Description: descriptions[category],
			Location: models.GrievanceLocation{
				Lat:     g.between(12.90, 13.00),
				Lng:     g.between(77.55, 77.65),
				Address: g.location(),
			},
			Status:    status,
			Priority:  priority,
			CreatedAt: created,
			Timeline:  timeline,
			Comments:  []models.Comment{},
		}
		if status != models.GrievanceRegistered {
			grievance.AssignedTo = g.engineer()
		}
		grievances = append(grievances, grievance)
	}

	sort.SliceStable(grievances, func(i, j int) bool {
		return grievances[i].CreatedAt.After(grievances[j].CreatedAt)
	})
	return grievances
}

type activityTemplate struct {
	kind      models.ActivityKind
	templates []string
}

var activityTemplates = []activityTemplate{
	{models.ActivitySystem, []string{"New asset %s added to the system", "Asset %s registered successfully"}},
	{models.ActivityAlert, []string{"Anomaly detected in sensor %s", "Sensor %s threshold exceeded"}},
	{models.ActivityGrievance, []string{"New complaint %s registered", "Complaint %s assigned to engineer"}},
	{models.ActivityResolved, []string{"Complaint %s resolved", "Maintenance completed for %s"}},
	{models.ActivityMaintenance, []string{"Maintenance scheduled for %s", "Asset %s under maintenance"}},
}

func (g *Generator) activities(now time.Time) []models.Activity {
	activities := make([]models.Activity, 0, ActivityCount)

	for i := 1; i <= ActivityCount; i++ {
		tpl := activityTemplates[g.pick(len(activityTemplates))]
		format := tpl.templates[g.pick(len(tpl.templates))]

		var subject string
		switch {
		case strings.Contains(format, "sensor"):
			subject = fmt.Sprintf("S%04d", g.pick(100))
		case strings.Contains(format, "omplaint"):
			subject = fmt.Sprintf("GRV%04d", g.pick(1000))
		default:
			subject = fmt.Sprintf("Asset-%d", g.pick(1000))
		}

		at := g.recent(now, activityWindow)
		activities = append(activities, models.NewActivity(fmt.Sprintf("ACT%04d", i), tpl.kind, fmt.Sprintf(format, subject), at))
	}

	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].Timestamp.After(activities[j].Timestamp)
	})
	return activities
}

// Alerts returns the fixed set of demo alerts, newest first
func Alerts(now time.Time) []models.Alert {
	return []models.Alert{
		{ID: "ALT001", Severity: models.AlertCritical, Message: "Water pressure critically low in MG Road pipeline", SensorID: "S0045", Value: "1.2 bar", Timestamp: now.Add(-5 * time.Minute)},
		{ID: "ALT002", Severity: models.AlertWarning, Message: "Tank T003 water level below 20%", SensorID: "S0012", Value: "18%", Timestamp: now.Add(-15 * time.Minute)},
		{ID: "ALT003", Severity: models.AlertCritical, Message: "Chlorine level too low at Water Source WS002", SensorID: "S0089", Value: "0.15 mg/L", Timestamp: now.Add(-25 * time.Minute)},
		{ID: "ALT004", Severity: models.AlertWarning, Message: "High turbidity detected in Koramangala supply", SensorID: "S0134", Value: "3.2 NTU", Timestamp: now.Add(-time.Hour)},
	}
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
