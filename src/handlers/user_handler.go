package handlers

import (
	"database/sql"
	"net/http"

	"github.com/username/welfarefund/src/logger"
	"github.com/username/welfarefund/src/security"
	"github.com/username/welfarefund/src/services"
	"github.com/username/welfarefund/src/utils"
)

type UserHandler struct {
	db          *sql.DB
	authService *security.AuthService
	accounts    services.AccountService
	members     services.MemberService
}

func NewUserHandler(db *sql.DB, authService *security.AuthService, accounts services.AccountService, members services.MemberService) *UserHandler {
	return &UserHandler{
		db:          db,
		authService: authService,
		accounts:    accounts,
		members:     members,
	}
}

func sessionMeta(r *http.Request) services.SessionMeta {
	return services.SessionMeta{UserAgent: r.UserAgent(), ClientIP: r.RemoteAddr}
}

func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &credentials) {
		return
	}
	result, err := h.accounts.Login(r.Context(), credentials.Username, credentials.Password, sessionMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	StaffNumber string `json:"staff_number"`
	Department  string `json:"department"`
	Phone       string `json:"phone"`
}

func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.accounts.Register(r.Context(), services.CreateMemberInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		StaffNumber: req.StaffNumber,
		Department:  req.Department,
		Phone:       req.Phone,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Registration successful. Check your email to verify your address.",
		"user":    user,
	})
}

func (h *UserHandler) VerifyEmailHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		utils.SendJSONError(w, "Verification token is required", http.StatusBadRequest)
		return
	}
	if _, err := h.accounts.VerifyEmail(r.Context(), token); err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "Email verified. You can now log in."})
}

func (h *UserHandler) RefreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.RefreshToken == "" {
		utils.SendJSONError(w, "Refresh token is required", http.StatusBadRequest)
		return
	}
	result, err := h.accounts.Refresh(r.Context(), body.RefreshToken, sessionMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}

func (h *UserHandler) LogoutUserHandler(w http.ResponseWriter, r *http.Request) {
	token, _ := r.Context().Value(tokenContextKey).(string)
	if err := h.accounts.Logout(r.Context(), token); err != nil {
		logger.FromContext(r.Context()).Error("Logout failed", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) RequestPasswordResetHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.accounts.RequestPasswordReset(r.Context(), body.Email); err != nil {
		logger.FromContext(r.Context()).Error("Password reset request failed", "error", err)
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "If an account exists for that email, a reset link has been sent.",
	})
}

func (h *UserHandler) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := h.accounts.ResetPassword(r.Context(), body.Token, body.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password updated. Please log in again."})
}

func (h *UserHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.members.GetMember(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, user)
}

func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var body struct {
		FullName   string `json:"full_name"`
		Phone      string `json:"phone"`
		Department string `json:"department"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	user, err := h.members.UpdateProfile(r.Context(), userID, services.ProfileInput{
		FullName: body.FullName, Phone: body.Phone, Department: body.Department,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, user)
}
