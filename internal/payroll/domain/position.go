package domain

import (
	"strings"
	"time"

	shared "github.com/vorluno/planilla/internal/shared/domain"
)

// RiskLevel is the occupational risk class of a position. It selects the
// employer's professional-risk contribution.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// IsValid reports whether r is a known level.
func (r RiskLevel) IsValid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// Position is a job inside a department with a salary band.
type Position struct {
	ID             int64
	TenantID       int64
	DepartmentID   int64
	Name           string
	Code           string
	MinSalaryCents int64
	MaxSalaryCents int64
	RiskLevel      RiskLevel
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PositionInput carries the editable fields of a position.
type PositionInput struct {
	DepartmentID   int64
	Name           string
	Code           string
	MinSalaryCents int64
	MaxSalaryCents int64
	RiskLevel      RiskLevel
}

func (in PositionInput) normalize() (PositionInput, error) {
	verr := &shared.ValidationError{}
	in.Name = strings.TrimSpace(in.Name)
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	requireText(verr, "name", in.Name, 100)
	validateCode(verr, in.Code)
	if in.DepartmentID <= 0 {
		verr.Add("department_id", "is required")
	}
	if in.MinSalaryCents < 0 {
		verr.Add("min_salary", "must not be negative")
	}
	if in.MaxSalaryCents > 0 && in.MaxSalaryCents < in.MinSalaryCents {
		verr.Add("max_salary", "must not be below the minimum salary")
	}
	if in.RiskLevel == "" {
		in.RiskLevel = RiskLow
	} else if !in.RiskLevel.IsValid() {
		verr.Add("risk_level", "must be Low, Medium or High")
	}
	return in, verr.OrNil()
}

// NewPosition validates in and returns an active position.
func NewPosition(tenantID int64, in PositionInput, now time.Time) (*Position, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Position{
		TenantID:       tenantID,
		DepartmentID:   in.DepartmentID,
		Name:           in.Name,
		Code:           in.Code,
		MinSalaryCents: in.MinSalaryCents,
		MaxSalaryCents: in.MaxSalaryCents,
		RiskLevel:      in.RiskLevel,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Update replaces the editable fields.
func (p *Position) Update(in PositionInput, now time.Time) error {
	in, err := in.normalize()
	if err != nil {
		return err
	}
	p.DepartmentID = in.DepartmentID
	p.Name, p.Code = in.Name, in.Code
	p.MinSalaryCents, p.MaxSalaryCents = in.MinSalaryCents, in.MaxSalaryCents
	p.RiskLevel = in.RiskLevel
	p.UpdatedAt = now.UTC()
	return nil
}

// AllowsSalary reports whether cents lies inside the position's band. A
// zero maximum leaves the band open above.
func (p *Position) AllowsSalary(cents int64) bool {
	if cents < p.MinSalaryCents {
		return false
	}
	return p.MaxSalaryCents == 0 || cents <= p.MaxSalaryCents
}
