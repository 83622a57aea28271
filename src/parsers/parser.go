package parsers

import (
	"io"

	"github.com/username/welfarefund/src/models"
)

// Parser turns an uploaded file into contribution rows. Rows that cannot be
// read are returned as row errors; only unreadable files fail.
type Parser interface {
	Parse(file io.Reader) ([]models.PayrollRow, []models.ImportRowError, error)
}
