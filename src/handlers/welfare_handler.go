package handlers

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/username/welfarefund/src/model"
	"github.com/username/welfarefund/src/services"
	"github.com/username/welfarefund/src/utils"
)

type WelfareHandler struct {
	welfare services.WelfareService
}

func NewWelfareHandler(welfare services.WelfareService) *WelfareHandler {
	return &WelfareHandler{welfare: welfare}
}

// HandleListServices shows members the active catalog; admins see everything.
func (h *WelfareHandler) HandleListServices(w http.ResponseWriter, r *http.Request) {
	activeOnly := getRoleFromContext(r.Context()) != model.RoleAdmin || r.URL.Query().Get("active") == "true"
	list, err := h.welfare.ListServices(r.Context(), activeOnly)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONWithETag(w, r, list)
}

func (h *WelfareHandler) HandleEligibility(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	serviceID, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.welfare.CheckEligibility(r.Context(), userID, serviceID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}

func (h *WelfareHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	list, err := h.welfare.ListApplications(r.Context(), services.ApplicationFilter{UserID: userID, Status: r.URL.Query().Get("status")})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, list)
}

func (h *WelfareHandler) HandleApply(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var body struct {
		ServiceID   int64           `json:"service_id"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	app, err := h.welfare.Apply(r.Context(), userID, services.ApplyInput{
		ServiceID: body.ServiceID, Amount: body.Amount, Description: body.Description,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, app)
}

func (h *WelfareHandler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	app, err := h.welfare.Withdraw(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, app)
}

func (h *WelfareHandler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, err := queryInt64(r, "user_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	serviceID, err := queryInt64(r, "service_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	list, err := h.welfare.ListApplications(r.Context(), services.ApplicationFilter{
		UserID: userID, ServiceID: serviceID, Status: q.Get("status"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, list)
}

func (h *WelfareHandler) HandleReview(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Approve bool            `json:"approve"`
		Amount  decimal.Decimal `json:"amount"`
		Note    string          `json:"note"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	app, err := h.welfare.Review(r.Context(), adminID, id, services.ReviewInput{
		Approve: body.Approve, Amount: body.Amount, Note: body.Note,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, app)
}

func (h *WelfareHandler) HandleDisburse(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	app, err := h.welfare.Disburse(r.Context(), adminID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, app)
}

type serviceRequest struct {
	Code                  string          `json:"code"`
	Name                  string          `json:"name"`
	Description           string          `json:"description"`
	MaxAmount             decimal.Decimal `json:"max_amount"`
	MinMembershipMonths   int             `json:"min_membership_months"`
	MinConsistencyPercent float64         `json:"min_consistency_percent"`
	Active                *bool           `json:"active"`
}

func (req serviceRequest) input() services.ServiceInput {
	return services.ServiceInput{
		Code:                  req.Code,
		Name:                  req.Name,
		Description:           req.Description,
		MaxAmount:             req.MaxAmount,
		MinMembershipMonths:   req.MinMembershipMonths,
		MinConsistencyPercent: req.MinConsistencyPercent,
		Active:                req.Active == nil || *req.Active,
	}
}

func (h *WelfareHandler) HandleCreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	svc, err := h.welfare.CreateService(r.Context(), req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/welfare/services/"+strconv.FormatInt(svc.ID, 10))
	utils.WriteJSON(w, http.StatusCreated, svc)
}

func (h *WelfareHandler) HandleUpdateService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := h.welfare.GetService(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req serviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	svc, err := h.welfare.UpdateService(r.Context(), id, req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, svc)
}
