package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestEventMarshal(t *testing.T) {
	e := Event{
		ID:         "evt-1",
		Type:       TypeUnitDiscarded,
		BranchID:   "branch-1",
		EntityID:   "BU-000042",
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Payload:    map[string]interface{}{"reason": "TTI_REACTIVE"},
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != TypeUnitDiscarded {
		t.Errorf("expected type %s, got %v", TypeUnitDiscarded, got["type"])
	}
	if got["entity_id"] != "BU-000042" {
		t.Errorf("expected entity_id BU-000042, got %v", got["entity_id"])
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	p.Publish(context.Background(), Event{Type: TypeUnitExpired})
	p.Close()
}
