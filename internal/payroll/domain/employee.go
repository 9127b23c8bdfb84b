package domain

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	shared "github.com/vorluno/planilla/internal/shared/domain"
)

// PayFrequency is how often an employee is paid.
type PayFrequency string

const (
	PayWeekly   PayFrequency = "Weekly"
	PayBiweekly PayFrequency = "Biweekly"
	PayMonthly  PayFrequency = "Monthly"
)

// IsValid reports whether f is a known frequency.
func (f PayFrequency) IsValid() bool {
	switch f {
	case PayWeekly, PayBiweekly, PayMonthly:
		return true
	}
	return false
}

const (
	maxPersonName = 100
	maxNationalID = 20
)

// Employee is a person on a tenant's payroll.
type Employee struct {
	shared.BaseAggregateRoot

	ID              int64
	TenantID        int64
	FirstName       string
	LastName        string
	NationalID      string
	BaseSalaryCents int64
	HireDate        time.Time
	DepartmentID    *int64
	PositionID      *int64
	PayFrequency    PayFrequency
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EmployeeInput carries the editable fields of an employee.
type EmployeeInput struct {
	FirstName       string
	LastName        string
	NationalID      string
	BaseSalaryCents int64
	HireDate        time.Time
	DepartmentID    *int64
	PositionID      *int64
	PayFrequency    PayFrequency
}

func (in EmployeeInput) normalize() (EmployeeInput, error) {
	verr := &shared.ValidationError{}
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.NationalID = strings.ToUpper(strings.TrimSpace(in.NationalID))

	requireText(verr, "first_name", in.FirstName, maxPersonName)
	requireText(verr, "last_name", in.LastName, maxPersonName)
	requireText(verr, "national_id", in.NationalID, maxNationalID)
	if in.BaseSalaryCents <= 0 {
		verr.Add("base_salary", "must be greater than zero")
	}
	if in.HireDate.IsZero() {
		verr.Add("hire_date", "is required")
	}
	if in.PayFrequency == "" {
		in.PayFrequency = PayBiweekly
	} else if !in.PayFrequency.IsValid() {
		verr.Add("pay_frequency", "must be Weekly, Biweekly or Monthly")
	}
	in.HireDate = dateOnly(in.HireDate)
	return in, verr.OrNil()
}

// NewEmployee validates in and returns an active employee not yet persisted.
func NewEmployee(tenantID int64, in EmployeeInput, now time.Time) (*Employee, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Employee{
		TenantID:        tenantID,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		NationalID:      in.NationalID,
		BaseSalaryCents: in.BaseSalaryCents,
		HireDate:        in.HireDate,
		DepartmentID:    in.DepartmentID,
		PositionID:      in.PositionID,
		PayFrequency:    in.PayFrequency,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// FullName returns "first last".
func (e *Employee) FullName() string {
	return e.FirstName + " " + e.LastName
}

// Created records the hire once the employee has an id.
func (e *Employee) Created() {
	e.event(RoutingKeyEmployeeCreated)
}

// Update replaces the editable fields.
func (e *Employee) Update(in EmployeeInput, now time.Time) error {
	in, err := in.normalize()
	if err != nil {
		return err
	}
	e.FirstName = in.FirstName
	e.LastName = in.LastName
	e.NationalID = in.NationalID
	e.BaseSalaryCents = in.BaseSalaryCents
	e.HireDate = in.HireDate
	e.DepartmentID = in.DepartmentID
	e.PositionID = in.PositionID
	e.PayFrequency = in.PayFrequency
	e.UpdatedAt = now.UTC()
	return nil
}

// Deactivate takes the employee off the payroll.
func (e *Employee) Deactivate(now time.Time) error {
	if !e.IsActive {
		return ErrEmployeeInactive
	}
	e.IsActive = false
	e.UpdatedAt = now.UTC()
	e.event(RoutingKeyEmployeeDeactivated)
	return nil
}

// Reactivate puts the employee back on the payroll.
func (e *Employee) Reactivate(now time.Time) error {
	if e.IsActive {
		return ErrEmployeeActive
	}
	e.IsActive = true
	e.UpdatedAt = now.UTC()
	e.event(RoutingKeyEmployeeReactivated)
	return nil
}

func (e *Employee) event(routingKey string) {
	e.AddDomainEvent(&EmployeeChanged{
		BaseEvent:  shared.NewBaseEvent(strconv.FormatInt(e.ID, 10), AggregateEmployee, routingKey),
		TenantID:   e.TenantID,
		EmployeeID: e.ID,
		IsActive:   e.IsActive,
	})
}

func requireText(verr *shared.ValidationError, field, value string, max int) {
	switch {
	case value == "":
		verr.Add(field, "is required")
	case utf8.RuneCountInString(value) > max:
		verr.Add(field, "must be at most "+strconv.Itoa(max)+" characters")
	}
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
