package ingest

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadText reads a pasted or uploaded text file through NewTextReader.
// Input longer than limit fails with ErrFileTooLarge when limit is positive.
func ReadText(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(NewTextReader(r, limit))
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyFile
	}
	return text, nil
}

// Kind is the detected type of an uploaded file.
type Kind string

const (
	KindSpreadsheet Kind = "xlsx"
	KindPDF         Kind = "pdf"
	KindText        Kind = "text"
	KindUnknown     Kind = ""
)

// Detect classifies an upload by extension, falling back to its leading
// bytes.
func Detect(fileName string, head []byte) Kind {
	name := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(name, ".xlsx"), strings.HasSuffix(name, ".xlsm"):
		return KindSpreadsheet
	case strings.HasSuffix(name, ".pdf"):
		return KindPDF
	case strings.HasSuffix(name, ".txt"), strings.HasSuffix(name, ".tsv"):
		return KindText
	}

	switch {
	case bytes.HasPrefix(head, []byte("%PDF")):
		return KindPDF
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		return KindSpreadsheet
	}
	return KindUnknown
}
