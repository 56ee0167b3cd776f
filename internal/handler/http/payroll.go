package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/handler/http/response"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/validator"
)

const (
	defaultRunListLimit = 50
	maxRunListLimit     = 200
)

type PayrollHandler interface {
	// Runs
	CreateRun(w http.ResponseWriter, r *http.Request)
	ListRuns(w http.ResponseWriter, r *http.Request)
	GetRun(w http.ResponseWriter, r *http.Request)
	Transition(w http.ResponseWriter, r *http.Request)
	ListPayslips(w http.ResponseWriter, r *http.Request)
	GetPayslip(w http.ResponseWriter, r *http.Request)
	ListAudit(w http.ResponseWriter, r *http.Request)

	// Configuration
	CreateConfig(w http.ResponseWriter, r *http.Request)
	ListConfigs(w http.ResponseWriter, r *http.Request)
	GetConfig(w http.ResponseWriter, r *http.Request)
	UpdateConfig(w http.ResponseWriter, r *http.Request)
	UpdateConfigStatus(w http.ResponseWriter, r *http.Request)
}

type payrollHandlerImpl struct {
	runService    payroll.RunService
	configService payroll.ConfigService
}

func NewPayrollHandler(runService payroll.RunService, configService payroll.ConfigService) PayrollHandler {
	return &payrollHandlerImpl{runService: runService, configService: configService}
}

// ========== RUNS ==========

func (h *payrollHandlerImpl) CreateRun(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req payroll.CreateRunRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	run, err := h.runService.Create(r.Context(), actor, req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Payroll run created", payroll.ToRunResponse(run))
}

func (h *payrollHandlerImpl) ListRuns(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var (
		q      = r.URL.Query()
		filter = payroll.RunFilter{Limit: getIntQueryParam(r, "limit", defaultRunListLimit)}
		errs   validator.ValidationErrors
	)
	if filter.Limit <= 0 || filter.Limit > maxRunListLimit {
		filter.Limit = defaultRunListLimit
	}
	if s := q.Get("status"); s != "" {
		st := payroll.Status(strings.ToUpper(s))
		if !st.Valid() {
			errs.Add("status", "unknown payroll status")
		}
		filter.Status = &st
	}
	if from := q.Get("from"); from != "" {
		t, ok := validator.IsValidDate(from)
		if !ok {
			errs.Add("from", "must be YYYY-MM-DD")
		}
		filter.From = &t
	}
	if to := q.Get("to"); to != "" {
		t, ok := validator.IsValidDate(to)
		if !ok {
			errs.Add("to", "must be YYYY-MM-DD")
		}
		filter.To = &t
	}
	if err := errs.OrNil(); err != nil {
		response.HandleError(w, err)
		return
	}

	runs, err := h.runService.List(r.Context(), actor, filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	out := make([]payroll.RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, payroll.ToRunResponse(run))
	}
	response.List(w, out, len(out), filter.Limit)
}

func (h *payrollHandlerImpl) GetRun(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	run, err := h.runService.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, payroll.ToRunResponse(run))
}

// Transition applies the event named by the {event} URL segment.
func (h *payrollHandlerImpl) Transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	event, ok := payroll.ParseEvent(chi.URLParam(r, "event"))
	if !ok {
		response.BadRequest(w, "Unknown payroll run event", map[string]string{"event": chi.URLParam(r, "event")})
		return
	}

	var req payroll.TransitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	run, err := h.runService.Transition(r.Context(), actor, chi.URLParam(r, "id"), event, req)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Payroll run "+string(event)+" applied", payroll.ToRunResponse(run))
}

func (h *payrollHandlerImpl) ListPayslips(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	payslips, err := h.runService.Payslips(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	out := make([]payroll.PayslipResponse, 0, len(payslips))
	for _, p := range payslips {
		out = append(out, payroll.ToPayslipResponse(p))
	}
	response.List(w, out, len(out), 0)
}

func (h *payrollHandlerImpl) GetPayslip(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	ps, err := h.runService.Payslip(r.Context(), actor, chi.URLParam(r, "id"), chi.URLParam(r, "payslipID"))
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, payroll.ToPayslipResponse(*ps))
}

func (h *payrollHandlerImpl) ListAudit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	entries, err := h.runService.Audit(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	out := make([]payroll.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, payroll.ToAuditEntryResponse(e))
	}
	response.List(w, out, len(out), 0)
}

// ========== CONFIGURATION ==========

func (h *payrollHandlerImpl) CreateConfig(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req payroll.CreateConfigRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cfg, err := h.configService.Create(r.Context(), actor, req)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Created(w, "Payroll configuration created", payroll.ToConfigResponse(cfg))
}

func (h *payrollHandlerImpl) ListConfigs(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var (
		filter = payroll.ConfigFilter{EmployeeID: getOptionalQueryParam(r, "employee_id")}
		errs   validator.ValidationErrors
	)
	if k := getOptionalQueryParam(r, "kind"); k != nil {
		kind := payroll.ConfigKind(strings.ToUpper(*k))
		if !kind.Valid() {
			errs.Add("kind", "unknown configuration kind")
		}
		filter.Kind = &kind
	}
	if s := getOptionalQueryParam(r, "status"); s != nil {
		st := payroll.ConfigStatus(strings.ToUpper(*s))
		if st != payroll.ConfigDraft && st != payroll.ConfigApproved && st != payroll.ConfigRejected {
			errs.Add("status", "must be DRAFT, APPROVED or REJECTED")
		}
		filter.Status = &st
	}
	if err := errs.OrNil(); err != nil {
		response.HandleError(w, err)
		return
	}

	configs, err := h.configService.List(r.Context(), actor, filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	out := make([]payroll.ConfigResponse, 0, len(configs))
	for _, c := range configs {
		out = append(out, payroll.ToConfigResponse(c))
	}
	response.List(w, out, len(out), 0)
}

func (h *payrollHandlerImpl) GetConfig(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	cfg, err := h.configService.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, payroll.ToConfigResponse(cfg))
}

func (h *payrollHandlerImpl) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req payroll.UpdateConfigRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cfg, err := h.configService.Update(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, payroll.ToConfigResponse(cfg))
}

func (h *payrollHandlerImpl) UpdateConfigStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req payroll.UpdateConfigStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cfg, err := h.configService.UpdateStatus(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Payroll configuration "+strings.ToLower(string(cfg.Status)), payroll.ToConfigResponse(cfg))
}
