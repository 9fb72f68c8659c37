package validation

import "errors"

var (
	ErrMissingFilename = errors.New("filename is required")
	ErrFileTooLarge    = errors.New("file size exceeds upload limit")
)
