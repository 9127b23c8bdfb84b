package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	payroll "github.com/vorluno/planilla/internal/payroll/domain"
	shared "github.com/vorluno/planilla/internal/shared/domain"
)

// Employees

func (s *Server) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	filter, err := employeeFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	employees, err := s.deps.Employees.List(r.Context(), tenantContext(r), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]employeeResponse, 0, len(employees))
	for i := range employees {
		out = append(out, newEmployeeResponse(&employees[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req employeeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	emp, err := s.deps.Employees.Create(r.Context(), tenantContext(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEmployeeResponse(emp))
}

func (s *Server) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	emp, err := s.deps.Employees.Get(r.Context(), tenantContext(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEmployeeResponse(emp))
}

func (s *Server) handleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req employeeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	emp, err := s.deps.Employees.Update(r.Context(), tenantContext(r), id, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEmployeeResponse(emp))
}

func (s *Server) handleDeactivateEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Employees.Deactivate(r.Context(), tenantContext(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReactivateEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	emp, err := s.deps.Employees.Reactivate(r.Context(), tenantContext(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEmployeeResponse(emp))
}

// handleExportEmployees renders the CSV into memory first so a denial can
// still be answered with a JSON error.
func (s *Server) handleExportEmployees(w http.ResponseWriter, r *http.Request) {
	filter, err := employeeFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if _, err := s.deps.Export.ExportEmployeesCSV(r.Context(), tenantContext(r), &buf, filter); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="empleados-%s.csv"`, s.now().Format("20060102")))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func employeeFilter(r *http.Request) (payroll.EmployeeFilter, error) {
	filter := payroll.EmployeeFilter{ActiveOnly: queryBool(r, "active", false)}
	if raw := r.URL.Query().Get("department_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return filter, ErrBadRequest
		}
		filter.DepartmentID = id
	}
	return filter, nil
}

// Departments

func (s *Server) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := s.deps.Departments.List(r.Context(), tenantContext(r), queryBool(r, "active", false))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]departmentResponse, 0, len(departments))
	for i := range departments {
		out = append(out, newDepartmentResponse(&departments[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req departmentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.deps.Departments.Create(r.Context(), tenantContext(r), req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newDepartmentResponse(d))
}

func (s *Server) handleGetDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.deps.Departments.Get(r.Context(), tenantContext(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDepartmentResponse(d))
}

func (s *Server) handleUpdateDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req departmentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.deps.Departments.Update(r.Context(), tenantContext(r), id, req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDepartmentResponse(d))
}

func (s *Server) handleDeactivateDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Departments.Deactivate(r.Context(), tenantContext(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Positions

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.deps.Positions.List(r.Context(), tenantContext(r), queryBool(r, "active", false))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]positionResponse, 0, len(positions))
	for i := range positions {
		out = append(out, newPositionResponse(&positions[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.deps.Positions.Create(r.Context(), tenantContext(r), req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPositionResponse(p))
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.deps.Positions.Get(r.Context(), tenantContext(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPositionResponse(p))
}

func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req positionRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.deps.Positions.Update(r.Context(), tenantContext(r), id, req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPositionResponse(p))
}

func (s *Server) handleDeactivatePosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Positions.Deactivate(r.Context(), tenantContext(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Payroll receipts

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	filter, err := receiptFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	receipts, err := s.deps.Receipts.List(r.Context(), tenantContext(r), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]receiptResponse, 0, len(receipts))
	for i := range receipts {
		out = append(out, newReceiptResponse(&receipts[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rc, err := s.deps.Receipts.Create(r.Context(), tenantContext(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReceiptResponse(rc))
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rc, err := s.deps.Receipts.Get(r.Context(), tenantContext(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReceiptResponse(rc))
}

func receiptFilter(r *http.Request) (payroll.ReceiptFilter, error) {
	var filter payroll.ReceiptFilter
	q := r.URL.Query()
	if raw := q.Get("employee_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return filter, ErrBadRequest
		}
		filter.EmployeeID = id
	}
	verr := &shared.ValidationError{}
	filter.From = parseDate(verr, "from", q.Get("from"))
	filter.To = parseDate(verr, "to", q.Get("to"))
	return filter, verr.OrNil()
}
