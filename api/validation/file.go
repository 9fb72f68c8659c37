package validation

import (
	"mime/multipart"
	"path/filepath"
	"strings"
)

// ValidateUpload checks the multipart header before the body is read.
// Empty files are accepted and processed like any other.
func ValidateUpload(header *multipart.FileHeader, maxSize int64) error {
	if SanitizeFilename(header.Filename) == "" {
		return ErrMissingFilename
	}
	if header.Size > maxSize {
		return ErrFileTooLarge
	}
	return nil
}

// SanitizeFilename strips any client-supplied directory components.
func SanitizeFilename(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}
