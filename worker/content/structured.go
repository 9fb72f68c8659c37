package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

var errInvalidUTF8 = errors.New("invalid utf-8 sequence")

func decodeUTF8(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", decodeError("content is not valid UTF-8", errInvalidUTF8)
	}
	return string(data), nil
}

// processCSV counts rows by splitting on '\n' without trimming, so a trailing
// newline yields one extra empty row.
func processCSV(_ string, data []byte) (string, error) {
	text, err := decodeUTF8(data)
	if err != nil {
		return "", err
	}

	rows := strings.Split(text, "\n")
	columns := len(strings.Split(rows[0], ","))

	return fmt.Sprintf("CSV file processed: %d rows, %d columns, %d bytes", len(rows), columns, len(data)), nil
}

// processJSON measures the compact re-encoding of the parsed document.
// Object keys are emitted sorted, which keeps the metric deterministic.
func processJSON(_ string, data []byte) (string, error) {
	text, err := decodeUTF8(data)
	if err != nil {
		return "", err
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return "", parseError("malformed JSON", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return "", parseError("malformed JSON", errors.New("unexpected data after top-level value"))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return "", &Error{Kind: KindProcessing, Message: "re-encode JSON", Err: err}
	}
	size := utf8.RuneCount(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}))

	return fmt.Sprintf("JSON file processed: %d chars, valid JSON", size), nil
}
