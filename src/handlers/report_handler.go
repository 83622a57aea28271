package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/username/welfarefund/src/logger"
	"github.com/username/welfarefund/src/services"
	"github.com/username/welfarefund/src/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ReportHandler struct {
	reports services.ReportService
}

func NewReportHandler(reports services.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

func (h *ReportHandler) HandleMemberDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	dash, err := h.reports.MemberDashboard(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONWithETag(w, r, dash)
}

func (h *ReportHandler) HandleMyStatement(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.writeStatement(w, r, userID)
}

func (h *ReportHandler) HandleMemberStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	h.writeStatement(w, r, id)
}

func (h *ReportHandler) writeStatement(w http.ResponseWriter, r *http.Request, userID int64) {
	statement, err := h.reports.MemberStatement(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, statement)
}

func (h *ReportHandler) HandleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.reports.AdminDashboard(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONWithETag(w, r, dash)
}

func (h *ReportHandler) HandleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year", time.Now().Year())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	report, err := h.reports.MonthlyReport(r.Context(), year)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSONWithETag(w, r, report)
}

// HandleExport streams the contribution workbook for ?year=. The workbook is built in
// memory first so a failure can still be reported as JSON.
func (h *ReportHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year", time.Now().Year())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := h.reports.ExportContributions(r.Context(), year, &buf); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="contributions-%d.xlsx"`, year))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		logger.FromContext(r.Context()).Warn("Failed to stream export", "year", year, "error", err)
	}
}
