package handlers

import (
	"net/http"
	"strconv"

	"github.com/username/welfarefund/src/model"
	"github.com/username/welfarefund/src/services"
	"github.com/username/welfarefund/src/utils"
)

// MemberHandler is the admin view over the member register.
type MemberHandler struct {
	members services.MemberService
}

func NewMemberHandler(members services.MemberService) *MemberHandler {
	return &MemberHandler{members: members}
}

func (h *MemberHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users, err := h.members.ListMembers(r.Context(), model.UserFilter{
		Role:   q.Get("role"),
		Status: q.Get("status"),
		Search: q.Get("search"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, users)
}

func (h *MemberHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username    string `json:"username"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		FullName    string `json:"full_name"`
		StaffNumber string `json:"staff_number"`
		Department  string `json:"department"`
		Phone       string `json:"phone"`
		Role        string `json:"role"`
		JoinedAt    string `json:"joined_at"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	user, err := h.members.CreateMember(r.Context(), services.CreateMemberInput{
		Username:    body.Username,
		Email:       body.Email,
		Password:    body.Password,
		FullName:    body.FullName,
		StaffNumber: body.StaffNumber,
		Department:  body.Department,
		Phone:       body.Phone,
		Role:        body.Role,
		JoinedAt:    body.JoinedAt,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/admin/members/"+strconv.FormatInt(user.ID, 10))
	utils.WriteJSON(w, http.StatusCreated, user)
}

func (h *MemberHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, err := h.members.GetMember(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, user)
}

func (h *MemberHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	user, err := h.members.UpdateStatus(r.Context(), adminID, id, body.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, user)
}
