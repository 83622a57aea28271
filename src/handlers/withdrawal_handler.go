package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/username/welfarefund/src/services"
	"github.com/username/welfarefund/src/utils"
)

type WithdrawalHandler struct {
	withdrawals services.WithdrawalService
}

func NewWithdrawalHandler(withdrawals services.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals}
}

func (h *WithdrawalHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	balance, err := h.withdrawals.Balance(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONWithETag(w, r, balance)
}

func (h *WithdrawalHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	list, err := h.withdrawals.List(r.Context(), services.WithdrawalFilter{UserID: userID, Status: r.URL.Query().Get("status")})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, list)
}

func (h *WithdrawalHandler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var body struct {
		Amount decimal.Decimal `json:"amount"`
		Reason string          `json:"reason"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	wd, err := h.withdrawals.Request(r.Context(), userID, body.Amount, body.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, wd)
}

func (h *WithdrawalHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	wd, err := h.withdrawals.Cancel(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, wd)
}

func (h *WithdrawalHandler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	userID, err := queryInt64(r, "user_id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	list, err := h.withdrawals.List(r.Context(), services.WithdrawalFilter{UserID: userID, Status: r.URL.Query().Get("status")})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, list)
}

func (h *WithdrawalHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, func(adminID, id int64, note string) (interface{}, error) {
		return h.withdrawals.Approve(r.Context(), adminID, id, note)
	})
}

func (h *WithdrawalHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, func(adminID, id int64, note string) (interface{}, error) {
		return h.withdrawals.Reject(r.Context(), adminID, id, note)
	})
}

func (h *WithdrawalHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, func(adminID, id int64, _ string) (interface{}, error) {
		return h.withdrawals.Complete(r.Context(), adminID, id)
	})
}

// review runs an admin decision on the withdrawal named in the path. The body, with
// an optional note, may be empty.
func (h *WithdrawalHandler) review(w http.ResponseWriter, r *http.Request, decide func(adminID, id int64, note string) (interface{}, error)) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body noteRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &body) {
		return
	}
	result, err := decide(adminID, id, body.Note)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}
