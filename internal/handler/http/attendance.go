package http

import (
	"net/http"
	"strings"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/handler/http/response"
)

type AttendanceHandler interface {
	RecordPunch(w http.ResponseWriter, r *http.Request)
	Evaluate(w http.ResponseWriter, r *http.Request)
	ListRecords(w http.ResponseWriter, r *http.Request)
	ListExceptions(w http.ResponseWriter, r *http.Request)
	ResolveException(w http.ResponseWriter, r *http.Request)
}

type attendanceHandlerImpl struct {
	attendanceService attendance.Service
	ledger            attendance.Ledger
}

func NewAttendanceHandler(attendanceService attendance.Service, ledger attendance.Ledger) AttendanceHandler {
	return &attendanceHandlerImpl{
		attendanceService: attendanceService,
		ledger:            ledger,
	}
}

// RecordPunch implements AttendanceHandler.
func (h *attendanceHandlerImpl) RecordPunch(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req attendance.RecordPunchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.EmployeeID == "" {
		req.EmployeeID = actor.EmployeeID
	}

	record, err := h.attendanceService.RecordPunch(r.Context(), actor, req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Punch recorded", attendance.ToRecordResponse(record))
}

// Evaluate implements AttendanceHandler.
func (h *attendanceHandlerImpl) Evaluate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req attendance.EvaluateDayRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	record, err := h.attendanceService.EvaluateDay(r.Context(), actor, req.EmployeeID, req.ParsedDate())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, attendance.ToRecordResponse(record))
}

func listRecordsRequest(r *http.Request) attendance.ListRecordsRequest {
	q := r.URL.Query()
	return attendance.ListRecordsRequest{
		EmployeeID: q.Get("employee_id"),
		From:       q.Get("from"),
		To:         q.Get("to"),
	}
}

// ListRecords implements AttendanceHandler.
func (h *attendanceHandlerImpl) ListRecords(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	records, err := h.attendanceService.List(r.Context(), actor, listRecordsRequest(r))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	out := make([]attendance.RecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, attendance.ToRecordResponse(rec))
	}
	response.List(w, out, len(out), 0)
}

// ListExceptions implements AttendanceHandler. Only unresolved exceptions are listed.
func (h *attendanceHandlerImpl) ListExceptions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	exceptions, err := h.attendanceService.ListExceptions(r.Context(), actor, listRecordsRequest(r))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	out := make([]attendance.ExceptionResponse, 0, len(exceptions))
	for _, e := range exceptions {
		out = append(out, attendance.ToExceptionResponse(e))
	}
	response.List(w, out, len(out), 0)
}

// ResolveException implements AttendanceHandler.
func (h *attendanceHandlerImpl) ResolveException(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req attendance.ResolveExceptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	record, err := h.ledger.ResolveException(r.Context(), actor, req.RecordID, attendance.ExceptionType(strings.ToUpper(req.Type)))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Exception resolved", attendance.ToRecordResponse(record))
}
