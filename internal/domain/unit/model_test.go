package unit

import (
	"testing"
	"time"
)

func TestCanTransition_LegalEdges(t *testing.T) {
	legal := []struct{ from, to UnitStatus }{
		{StatusCollected, StatusTestingPending},
		{StatusTestingPending, StatusAvailable},
		{StatusTestingPending, StatusQuarantined},
		{StatusQuarantined, StatusAvailable},
		{StatusQuarantined, StatusDiscarded},
		{StatusAvailable, StatusReserved},
		{StatusAvailable, StatusExpired},
		{StatusReserved, StatusIssued},
		{StatusReserved, StatusAvailable},
		{StatusIssued, StatusTransfused},
		{StatusIssued, StatusAvailable},
		{StatusIssued, StatusDiscarded},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}
}

func TestCanTransition_IllegalEdges(t *testing.T) {
	illegal := []struct{ from, to UnitStatus }{
		{StatusCollected, StatusAvailable},
		{StatusCollected, StatusIssued},
		{StatusTestingPending, StatusReserved},
		{StatusAvailable, StatusTransfused},
		{StatusTransfused, StatusAvailable},
		{StatusDiscarded, StatusAvailable},
		{StatusExpired, StatusAvailable},
		{StatusIssued, StatusReserved},
	}
	for _, tc := range illegal {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []UnitStatus{StatusTransfused, StatusDiscarded, StatusExpired} {
		if !IsTerminal(s) {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []UnitStatus{StatusCollected, StatusAvailable, StatusIssued} {
		if IsTerminal(s) {
			t.Errorf("did not expect %s to be terminal", s)
		}
	}
}

func TestCompatible(t *testing.T) {
	cases := []struct {
		recipient, donor BloodGroup
		want             bool
	}{
		{APos, APos, true},
		{APos, ONeg, true},
		{APos, BPos, false},
		{ONeg, ONeg, true},
		{ONeg, OPos, false},
		{ABPos, BNeg, true},
		{ABNeg, OPos, false},
		{ABNeg, ONeg, true},
		{BNeg, ONeg, true},
		{BNeg, OPos, false},
	}
	for _, tc := range cases {
		if got := Compatible(tc.recipient, tc.donor); got != tc.want {
			t.Errorf("Compatible(%s, %s) = %v, want %v", tc.recipient, tc.donor, got, tc.want)
		}
	}
}

func TestCompatibleDonorGroups_UniversalRecipient(t *testing.T) {
	groups := CompatibleDonorGroups(ABPos)
	if len(groups) != 8 {
		t.Errorf("AB_POS should accept all 8 groups, got %d", len(groups))
	}
	if got := CompatibleDonorGroups(ONeg); len(got) != 1 || got[0] != ONeg {
		t.Errorf("O_NEG should accept only O_NEG, got %v", got)
	}
}

func TestExpiryFor(t *testing.T) {
	collected := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		component ComponentType
		days      int
	}{
		{WholeBlood, 35},
		{PackedRedCells, 42},
		{Platelets, 5},
		{FreshFrozenPlasma, 365},
	}
	for _, tc := range cases {
		want := collected.AddDate(0, 0, tc.days)
		if got := ExpiryFor(tc.component, collected); !got.Equal(want) {
			t.Errorf("ExpiryFor(%s) = %v, want %v", tc.component, got, want)
		}
	}
}

func TestBloodUnit_Expired(t *testing.T) {
	now := time.Now()
	u := &BloodUnit{ExpiresAt: now.Add(time.Hour)}
	if u.Expired(now) {
		t.Error("unit expiring in an hour should not be expired")
	}
	u.ExpiresAt = now.Add(-time.Minute)
	if !u.Expired(now) {
		t.Error("unit past expiry should be expired")
	}
}

func TestValidDiscardReason(t *testing.T) {
	for _, r := range []string{DiscardExpired, DiscardTTIReactive, DiscardBagLeak, DiscardReturnTimeout, DiscardOther} {
		if !ValidDiscardReason(r) {
			t.Errorf("expected %s to be valid", r)
		}
	}
	if ValidDiscardReason("MOOD") {
		t.Error("unknown reason should be invalid")
	}
}
