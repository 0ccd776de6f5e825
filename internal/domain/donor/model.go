// Package donor manages donor registration, deferral and eligibility.
package donor

import (
	"time"

	"github.com/google/uuid"

	"github.com/zyposofttech/ZypoCare-One-sub019/internal/domain/unit"
)

// Donor maps to the donor table.
type Donor struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	DonorNumber string           `db:"donor_number" json:"donor_number"`
	BranchID    string           `db:"branch_id" json:"branch_id"`
	FirstName   string           `db:"first_name" json:"first_name"`
	LastName    string           `db:"last_name" json:"last_name"`
	Gender      string           `db:"gender" json:"gender"`
	DateOfBirth time.Time        `db:"date_of_birth" json:"date_of_birth"`
	BloodGroup  *unit.BloodGroup `db:"blood_group" json:"blood_group,omitempty"`
	Phone       *string          `db:"phone" json:"phone,omitempty"`
	Email       *string          `db:"email" json:"email,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// DeferralType classifies how long a donor is barred from donating.
type DeferralType string

const (
	DeferralPermanent DeferralType = "PERMANENT"
	DeferralTemporary DeferralType = "TEMPORARY"
)

// Deferral maps to the donor_deferral table. A temporary deferral carries an
// end date; a permanent one never lapses.
type Deferral struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	DonorID   uuid.UUID    `db:"donor_id" json:"donor_id"`
	Type      DeferralType `db:"deferral_type" json:"deferral_type"`
	Reason    string       `db:"reason" json:"reason"`
	StartDate time.Time    `db:"start_date" json:"start_date"`
	EndDate   *time.Time   `db:"end_date" json:"end_date,omitempty"`
	CreatedBy string       `db:"created_by" json:"created_by"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// Active reports whether the deferral still bars donation at the given time.
func (d *Deferral) Active(now time.Time) bool {
	if d.Type == DeferralPermanent {
		return true
	}
	return d.EndDate != nil && d.EndDate.After(now)
}

// minDonationInterval is the minimum gap between whole blood donations.
const minDonationInterval = 90 * 24 * time.Hour

// minDonorAge and maxDonorAge bound the acceptable donor age in years.
const (
	minDonorAge = 18
	maxDonorAge = 65
)

// Age returns the donor's age in whole years at the given time.
func (d *Donor) Age(now time.Time) int {
	years := now.Year() - d.DateOfBirth.Year()
	if now.YearDay() < d.DateOfBirth.YearDay() {
		years--
	}
	return years
}
