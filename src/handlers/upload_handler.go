package handlers

import (
	"fmt"
	"net/http"

	"github.com/username/welfarefund/src/logger"
	"github.com/username/welfarefund/src/security/validation"
	"github.com/username/welfarefund/src/services"
	"github.com/username/welfarefund/src/utils"
)

// UploadHandler accepts payroll and bank statement files for bulk contribution import.
type UploadHandler struct {
	contributions services.ContributionService
	maxUploadSize int64
}

func NewUploadHandler(contributions services.ContributionService, maxUploadSize int64) *UploadHandler {
	return &UploadHandler{contributions: contributions, maxUploadSize: maxUploadSize}
}

func (h *UploadHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}
	log := logger.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+1024)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		log.Warn("Failed to parse multipart form or request too large", "error", err, "limit", h.maxUploadSize)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", h.maxUploadSize/(1024*1024)), http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		log.Warn("Failed to retrieve file from request", "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > h.maxUploadSize {
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB", h.maxUploadSize/(1024*1024)), http.StatusBadRequest)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		log.Warn("Invalid client-declared file type", "contentType", clientContentType, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file)
	if err != nil {
		log.Warn("Server-side file content validation failed", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	format := r.FormValue("format")
	log.Info("Processing import", "filename", fileHeader.Filename, "format", format, "detectedType", detectedContentType)
	result, err := h.contributions.Import(r.Context(), adminID, format, file)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}
