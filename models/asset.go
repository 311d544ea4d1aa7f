package models

import "time"

type AssetType string

const (
	AssetPipeline AssetType = "pipeline"
	AssetTank     AssetType = "tank"
	AssetPump     AssetType = "pump"
	AssetSource   AssetType = "source"
)

var AssetTypes = []AssetType{AssetPipeline, AssetTank, AssetPump, AssetSource}

type AssetStatus string

const (
	AssetOperational AssetStatus = "operational"
	AssetMaintenance AssetStatus = "maintenance"
	AssetCritical    AssetStatus = "critical"
	AssetOffline     AssetStatus = "offline"
)

var AssetStatuses = []AssetStatus{AssetOperational, AssetMaintenance, AssetCritical, AssetOffline}

// Asset is a piece of network infrastructure. Only the attributes relevant
// to its type are populated.
type Asset struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Type        AssetType     `json:"type"`
	Status      AssetStatus   `json:"status"`
	InstallDate time.Time     `json:"install_date"`
	Coordinates []Coordinates `json:"coordinates"`

	// pipeline
	DiameterMM int    `json:"diameter_mm,omitempty"`
	Material   string `json:"material,omitempty"`
	LengthM    int    `json:"length_m,omitempty"`

	// tank, pump, source
	Capacity     float64 `json:"capacity,omitempty"`
	CurrentLevel float64 `json:"current_level,omitempty"`
	PowerKW      int     `json:"power_kw,omitempty"`
	SourceKind   string  `json:"source_kind,omitempty"`
}
