package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/username/welfarefund/src/services"
	"github.com/username/welfarefund/src/utils"
)

type ContributionHandler struct {
	contributions services.ContributionService
}

func NewContributionHandler(contributions services.ContributionService) *ContributionHandler {
	return &ContributionHandler{contributions: contributions}
}

type contributionRequest struct {
	UserID    int64           `json:"user_id"`
	Period    string          `json:"period"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reference string          `json:"reference"`
	Note      string          `json:"note"`
}

func (req contributionRequest) input() services.ContributionInput {
	return services.ContributionInput{
		UserID:    req.UserID,
		Period:    req.Period,
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: req.Reference,
		Note:      req.Note,
	}
}

func contributionFilter(r *http.Request) (services.ContributionFilter, error) {
	q := r.URL.Query()
	year, err := queryInt(r, "year", 0)
	if err != nil {
		return services.ContributionFilter{}, err
	}
	userID, err := queryInt64(r, "user_id")
	if err != nil {
		return services.ContributionFilter{}, err
	}
	return services.ContributionFilter{UserID: userID, Status: q.Get("status"), Period: q.Get("period"), Year: year}, nil
}

// HandleListMine lists the caller's contributions. Any user_id in the query is ignored.
func (h *ContributionHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	filter, err := contributionFilter(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	filter.UserID = userID
	list, err := h.contributions.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, list)
}

func (h *ContributionHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	summary, err := h.contributions.Summary(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONWithETag(w, r, summary)
}

func (h *ContributionHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req contributionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.contributions.Submit(r.Context(), userID, req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, c)
}

func (h *ContributionHandler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	filter, err := contributionFilter(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	list, err := h.contributions.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, list)
}

func (h *ContributionHandler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req contributionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.contributions.Record(r.Context(), adminID, req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, c)
}

func (h *ContributionHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.contributions.Confirm(r.Context(), adminID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, c)
}

func (h *ContributionHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body noteRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	c, err := h.contributions.Reject(r.Context(), adminID, id, body.Note)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, c)
}

type noteRequest struct {
	Note string `json:"note"`
}
