// Package upload checks an uploaded file before any Document is created.
package upload

import (
	"bytes"
	"fmt"
	"mime"
	"strings"

	"github.com/dvloznov/fintrack-api/internal/domain"
	"github.com/ledongthuc/pdf"
)

// MaxFileSize is the largest accepted upload.
const MaxFileSize = 10 << 20

// AllowedMIMETypes lists the declared content types accepted for upload.
var AllowedMIMETypes = []string{"application/pdf"}

// File is an upload held in memory.
type File struct {
	Filename string
	MIMEType string
	Data     []byte
}

// Validate rejects files with a disallowed type, an empty or oversized body,
// or bytes that do not open as a PDF with at least one page. It returns the
// normalized MIME type on success.
func Validate(f File) (string, error) {
	if strings.TrimSpace(f.Filename) == "" {
		return "", domain.NewValidationError("file", "filename is required")
	}

	mimeType := normalizeMIME(f.MIMEType)
	if !allowed(mimeType) {
		return "", domain.NewValidationError("file", "Invalid file type. Allowed types: %s", strings.Join(AllowedMIMETypes, ", "))
	}

	size := len(f.Data)
	if size == 0 {
		return "", domain.NewValidationError("file", "File is empty")
	}
	if size > MaxFileSize {
		return "", domain.NewValidationError("file", "File too large. Maximum size: %dMB", MaxFileSize>>20)
	}

	pages, err := countPages(f.Data)
	if err != nil {
		return "", domain.NewValidationError("file", "File is not a readable PDF: %v", err)
	}
	if pages < 1 {
		return "", domain.NewValidationError("file", "PDF has no pages")
	}

	return mimeType, nil
}

// countPages opens data as a PDF. The parser panics on some malformed
// inputs, so panics are turned into errors.
func countPages(data []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}

func normalizeMIME(declared string) string {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(declared))
	}
	return mt
}

func allowed(mimeType string) bool {
	for _, a := range AllowedMIMETypes {
		if a == mimeType {
			return true
		}
	}
	return false
}
