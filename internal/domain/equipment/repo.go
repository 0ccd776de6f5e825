package equipment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for the equipment monitor. As
// elsewhere, boolean returns report whether a guarded update matched a row.
type Repository interface {
	CreateEquipment(ctx context.Context, e *Equipment) error
	GetEquipment(ctx context.Context, id uuid.UUID) (*Equipment, error)
	GetBySensorID(ctx context.Context, branchID, sensorID string) (*Equipment, error)
	ListEquipment(ctx context.Context, params map[string]string, limit, offset int) ([]*Equipment, int, error)
	UpdateEquipment(ctx context.Context, e *Equipment) error
	RecordCalibration(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	CreateSlots(ctx context.Context, slots []*Slot) error
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListSlots(ctx context.Context, equipmentID uuid.UUID) ([]*Slot, error)

	AppendTemperatureLog(ctx context.Context, l *TemperatureLog) error
	ListTemperatureLogs(ctx context.Context, equipmentID uuid.UUID, limit, offset int) ([]*TemperatureLog, int, error)
	// HasRecoveryLog reports whether an in-band reading exists after since.
	HasRecoveryLog(ctx context.Context, equipmentID uuid.UUID, since time.Time) (bool, error)

	CreateBreach(ctx context.Context, b *Breach) error
	GetBreach(ctx context.Context, id uuid.UUID) (*Breach, error)
	// OpenBreach returns the unclosed breach for a device, pgx.ErrNoRows if none.
	OpenBreach(ctx context.Context, equipmentID uuid.UUID) (*Breach, error)
	ListBreaches(ctx context.Context, params map[string]string, limit, offset int) ([]*Breach, int, error)
	AcknowledgeBreach(ctx context.Context, id uuid.UUID, by string, at time.Time) (bool, error)
	CloseBreach(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	AddBreachUnits(ctx context.Context, entries []*BreachUnit) error
	GetBreachUnit(ctx context.Context, breachID, unitID uuid.UUID) (*BreachUnit, error)
	ListBreachUnits(ctx context.Context, breachID uuid.UUID) ([]*BreachUnit, error)
	SetBreachUnitDisposition(ctx context.Context, breachID, unitID uuid.UUID, d BreachDisposition, note *string, by string, at time.Time) (bool, error)
	UndispositionedCount(ctx context.Context, breachID uuid.UUID) (int, error)
}
