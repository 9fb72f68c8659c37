// Package content computes the descriptive result of an uploaded file.
// Everything here is pure: the same filename and bytes always produce the
// same result or the same error.
package content

import (
	"bytes"
	"fmt"
	"strings"
)

type handlerFunc func(filename string, data []byte) (string, error)

type route struct {
	suffix  string
	handler handlerFunc
}

// Suffixes are matched case-sensitively, first match wins.
var routes = []route{
	{".txt", processText},
	{".csv", processCSV},
	{".json", processJSON},
	{".png", processImage},
	{".jpg", processImage},
	{".jpeg", processImage},
	{".gif", processImage},
	{".xlsx", processSpreadsheet},
}

// Process dispatches on the filename suffix. Failures are returned as *Error.
func Process(filename string, data []byte) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = ""
			err = &Error{Kind: KindProcessing, Message: fmt.Sprintf("panic while processing %s: %v", filename, r)}
		}
	}()

	for _, rt := range routes {
		if strings.HasSuffix(filename, rt.suffix) {
			return rt.handler(filename, data)
		}
	}
	return processFallback(filename, data)
}

func processText(_ string, data []byte) (string, error) {
	lines := bytes.Count(data, []byte{'\n'})
	return fmt.Sprintf("Text file processed: %d bytes, lines: %d", len(data), lines), nil
}

func processFallback(filename string, data []byte) (string, error) {
	return fmt.Sprintf("File processed: %s, size: %d bytes", filename, len(data)), nil
}
