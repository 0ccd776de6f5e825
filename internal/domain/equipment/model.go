// Package equipment is the inventory and equipment monitor: storage devices
// and their slots, temperature logs, and the breach workflow that quarantines
// every slotted unit when a reading leaves the safe band.
package equipment

import (
	"time"

	"github.com/google/uuid"
)

// EquipmentType is the kind of storage device.
type EquipmentType string

const (
	TypeRefrigerator     EquipmentType = "REFRIGERATOR"
	TypeFreezer          EquipmentType = "FREEZER"
	TypePlateletAgitator EquipmentType = "PLATELET_AGITATOR"
	TypeTransportBox     EquipmentType = "TRANSPORT_BOX"
)

var validTypes = map[EquipmentType]bool{
	TypeRefrigerator: true, TypeFreezer: true,
	TypePlateletAgitator: true, TypeTransportBox: true,
}

// ValidEquipmentType reports whether t is a known device kind.
func ValidEquipmentType(t EquipmentType) bool { return validTypes[t] }

// EquipmentStatus is the operational state of a device.
type EquipmentStatus string

const (
	StatusActive      EquipmentStatus = "ACTIVE"
	StatusMaintenance EquipmentStatus = "UNDER_MAINTENANCE"
	StatusRetired     EquipmentStatus = "RETIRED"
)

// Equipment maps to the storage_equipment table.
type Equipment struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	BranchID     string          `db:"branch_id" json:"branch_id"`
	Name         string          `db:"name" json:"name"`
	Type         EquipmentType   `db:"equipment_type" json:"equipment_type"`
	SerialNumber *string         `db:"serial_number" json:"serial_number,omitempty"`
	Status       EquipmentStatus `db:"status" json:"status"`

	MinTempC float64 `db:"min_temp_c" json:"min_temp_c"`
	MaxTempC float64 `db:"max_temp_c" json:"max_temp_c"`

	// SensorID maps readings from an external temperature sensor to this
	// device. Unique per branch when set.
	SensorID *string `db:"sensor_id" json:"sensor_id,omitempty"`

	LastCalibratedAt        *time.Time `db:"last_calibrated_at" json:"last_calibrated_at,omitempty"`
	CalibrationIntervalDays int        `db:"calibration_interval_days" json:"calibration_interval_days"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// InBand reports whether a reading is inside the safe operating band.
func (e *Equipment) InBand(tempC float64) bool {
	return tempC >= e.MinTempC && tempC <= e.MaxTempC
}

// CalibrationDue reports whether the device is overdue for calibration.
// A device never calibrated is always due.
func (e *Equipment) CalibrationDue(now time.Time) bool {
	if e.LastCalibratedAt == nil {
		return true
	}
	due := e.LastCalibratedAt.AddDate(0, 0, e.CalibrationIntervalDays)
	return !now.Before(due)
}

// Slot is one storage position inside a device; at most one unit occupies
// it at a time (enforced by a partial unique index on the unit row).
type Slot struct {
	ID          uuid.UUID `db:"id" json:"id"`
	EquipmentID uuid.UUID `db:"equipment_id" json:"equipment_id"`
	Label       string    `db:"label" json:"label"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// TempSource distinguishes manual readings from sensor feeds.
type TempSource string

const (
	SourceManual TempSource = "MANUAL"
	SourceSensor TempSource = "SENSOR"
)

// TemperatureLog maps to the temperature_log table. Breach is computed
// against the device band at record time so the band can later be retuned
// without rewriting history.
type TemperatureLog struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	EquipmentID uuid.UUID  `db:"equipment_id" json:"equipment_id"`
	TempC       float64    `db:"temp_c" json:"temp_c"`
	Source      TempSource `db:"source" json:"source"`
	Breach      bool       `db:"breach" json:"breach"`
	RecordedBy  *string    `db:"recorded_by" json:"recorded_by,omitempty"`
	RecordedAt  time.Time  `db:"recorded_at" json:"recorded_at"`
}

// Breach is one temperature excursion. It stays open until every affected
// unit has a disposition; readings during an open breach do not open a
// second one.
type Breach struct {
	ID          uuid.UUID `db:"id" json:"id"`
	EquipmentID uuid.UUID `db:"equipment_id" json:"equipment_id"`
	BranchID    string    `db:"branch_id" json:"branch_id"`
	TempC       float64   `db:"temp_c" json:"temp_c"`
	DetectedAt  time.Time `db:"detected_at" json:"detected_at"`

	AcknowledgedBy *string    `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	ClosedAt       *time.Time `db:"closed_at" json:"closed_at,omitempty"`
}

// Acknowledged reports whether a reviewer has taken ownership of the breach.
func (b *Breach) Acknowledged() bool { return b.AcknowledgedAt != nil }

// BreachDisposition is the per-unit outcome of a breach review.
type BreachDisposition string

const (
	DispositionReleased  BreachDisposition = "RELEASED"
	DispositionDiscarded BreachDisposition = "DISCARDED"
)

// BreachUnit is one affected unit on a breach: the exact set of units
// slotted to the device at detection time, snapshotted so later slot moves
// cannot shrink the review.
type BreachUnit struct {
	BreachID   uuid.UUID `db:"breach_id" json:"breach_id"`
	UnitID     uuid.UUID `db:"unit_id" json:"unit_id"`
	UnitNumber string    `db:"unit_number" json:"unit_number"`

	Disposition *BreachDisposition `db:"disposition" json:"disposition,omitempty"`
	Note        *string            `db:"note" json:"note,omitempty"`
	ReviewedBy  *string            `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time         `db:"reviewed_at" json:"reviewed_at,omitempty"`
}
