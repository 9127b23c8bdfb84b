package domain

import (
	"regexp"
	"strings"
	"time"

	shared "github.com/vorluno/planilla/internal/shared/domain"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9_-]{1,20}$`)

// Department groups positions and employees.
type Department struct {
	ID          int64
	TenantID    int64
	Name        string
	Code        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DepartmentInput carries the editable fields of a department.
type DepartmentInput struct {
	Name        string
	Code        string
	Description string
}

func (in DepartmentInput) normalize() (DepartmentInput, error) {
	verr := &shared.ValidationError{}
	in.Name = strings.TrimSpace(in.Name)
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Description = strings.TrimSpace(in.Description)
	requireText(verr, "name", in.Name, 100)
	validateCode(verr, in.Code)
	if len(in.Description) > 500 {
		verr.Add("description", "must be at most 500 characters")
	}
	return in, verr.OrNil()
}

// NewDepartment validates in and returns an active department.
func NewDepartment(tenantID int64, in DepartmentInput, now time.Time) (*Department, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Department{
		TenantID:    tenantID,
		Name:        in.Name,
		Code:        in.Code,
		Description: in.Description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Update replaces the editable fields.
func (d *Department) Update(in DepartmentInput, now time.Time) error {
	in, err := in.normalize()
	if err != nil {
		return err
	}
	d.Name, d.Code, d.Description = in.Name, in.Code, in.Description
	d.UpdatedAt = now.UTC()
	return nil
}

func validateCode(verr *shared.ValidationError, code string) {
	if !codePattern.MatchString(code) {
		verr.Add("code", "must be 1-20 letters, digits, hyphens or underscores")
	}
}
