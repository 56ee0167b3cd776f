package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/rule"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/handler/http/response"
)

type RuleHandler interface {
	Create(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	Activate(w http.ResponseWriter, r *http.Request)
	Deactivate(w http.ResponseWriter, r *http.Request)
}

type ruleHandlerImpl struct {
	ruleService rule.Service
}

func NewRuleHandler(ruleService rule.Service) RuleHandler {
	return &ruleHandlerImpl{ruleService: ruleService}
}

func (h *ruleHandlerImpl) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req rule.CreateRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cfg, err := h.ruleService.Create(r.Context(), actor, req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Rule created", rule.ToRuleResponse(cfg))
}

func (h *ruleHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	filter := rule.ListFilter{
		Scope:      getOptionalQueryParam(r, "scope"),
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}
	if rt := getOptionalQueryParam(r, "rule_type"); rt != nil {
		t := rule.RuleType(strings.ToUpper(*rt))
		if !t.Valid() {
			response.BadRequest(w, "Unknown rule type", map[string]string{"rule_type": *rt})
			return
		}
		filter.RuleType = &t
	}

	configs, err := h.ruleService.List(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	out := make([]rule.RuleResponse, 0, len(configs))
	for _, c := range configs {
		out = append(out, rule.ToRuleResponse(c))
	}
	response.List(w, out, len(out), 0)
}

func (h *ruleHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.ruleService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, rule.ToRuleResponse(cfg))
}

func (h *ruleHandlerImpl) Activate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	cfg, err := h.ruleService.Activate(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Rule activated", rule.ToRuleResponse(cfg))
}

func (h *ruleHandlerImpl) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	cfg, err := h.ruleService.Deactivate(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Rule deactivated", rule.ToRuleResponse(cfg))
}
