package content

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/xuri/excelize/v2"
)

var errSignatureMismatch = errors.New("file extension does not match content")

var magicBytes = map[string][][]byte{
	".png":  {{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	".jpg":  {{0xFF, 0xD8, 0xFF}},
	".jpeg": {{0xFF, 0xD8, 0xFF}},
	".gif":  {[]byte("GIF87a"), []byte("GIF89a")},
}

func imageExt(filename string) string {
	for ext := range magicBytes {
		if strings.HasSuffix(filename, ext) {
			return ext
		}
	}
	return ""
}

func processImage(filename string, data []byte) (string, error) {
	ext := imageExt(filename)
	matched := false
	for _, sig := range magicBytes[ext] {
		if bytes.HasPrefix(data, sig) {
			matched = true
			break
		}
	}
	if !matched {
		return "", decodeError("image signature check failed", errSignatureMismatch)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", decodeError("cannot decode image", err)
	}
	b := img.Bounds()

	return fmt.Sprintf("Image file processed: %dx%d pixels, %d bytes", b.Dx(), b.Dy(), len(data)), nil
}

func processSpreadsheet(_ string, data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", parseError("cannot open spreadsheet", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	rows := 0
	for _, sheet := range sheets {
		r, err := f.GetRows(sheet)
		if err != nil {
			return "", parseError(fmt.Sprintf("cannot read sheet %q", sheet), err)
		}
		rows += len(r)
	}

	return fmt.Sprintf("Spreadsheet processed: %d sheets, %d rows, %d bytes", len(sheets), rows, len(data)), nil
}
