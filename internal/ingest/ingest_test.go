package ingest

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// ============================================================================
// Spreadsheet
// ============================================================================

func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

func TestReadSpreadsheet(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"Module No.", "Yard", "RFLO Date"},
		{"M1", "North", 45000},
		{"M2", "South"},
	})

	rows, err := ReadSpreadsheet(buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "M1", rows[0]["Module No."])
	assert.Equal(t, "North", rows[0]["Yard"])
	assert.Equal(t, "45000", rows[0]["RFLO Date"], "date serial should stay raw")

	assert.Equal(t, "M2", rows[1]["Module No."])
	_, has := rows[1]["RFLO Date"]
	assert.False(t, has, "missing trailing cell should be absent")
}

func TestReadSpreadsheet_SkipsLeadingBlankRows(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"", ""},
		{"Module No.", "Location"},
		{"M7", "Bay 3"},
	})

	rows, err := ReadSpreadsheet(buf)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bay 3", rows[0]["Location"])
}

func TestReadSpreadsheet_Empty(t *testing.T) {
	buf := buildWorkbook(t, nil)

	_, err := ReadSpreadsheet(buf)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestReadSpreadsheet_NotAWorkbook(t *testing.T) {
	_, err := ReadSpreadsheet(strings.NewReader("moduleNo,yard\nM1,North\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSpreadsheet))
}

// ============================================================================
// PDF
// ============================================================================

func TestAssembleLines(t *testing.T) {
	// Two table rows at y=700 and y=680, three columns each. Glyph runs
	// within a cell are adjacent; cells are 40+ units apart.
	glyphs := []glyph{
		{X: 100, Y: 680, W: 10, FontSize: 10, S: "North"},
		{X: 10, Y: 700, W: 20, FontSize: 10, S: "Module"},
		{X: 33, Y: 700, W: 15, FontSize: 10, S: "No."},
		{X: 100, Y: 700, W: 15, FontSize: 10, S: "Yard"},
		{X: 200, Y: 700, W: 30, FontSize: 10, S: "Location"},
		{X: 10, Y: 680.5, W: 10, FontSize: 10, S: "M1"},
		{X: 200, Y: 680, W: 10, FontSize: 10, S: "Bay"},
		{X: 210, Y: 680, W: 5, FontSize: 10, S: "3"},
	}

	lines := assembleLines(glyphs)
	require.Len(t, lines, 2)
	assert.Equal(t, "Module No."+ColumnGap+"Yard"+ColumnGap+"Location", lines[0])
	assert.Equal(t, "M1"+ColumnGap+"North"+ColumnGap+"Bay3", lines[1])
}

func TestAssembleLines_WordSpace(t *testing.T) {
	glyphs := []glyph{
		{X: 10, Y: 500, W: 12, FontSize: 10, S: "Bay"},
		{X: 25, Y: 500, W: 5, FontSize: 10, S: "3"},
	}
	assert.Equal(t, []string{"Bay 3"}, assembleLines(glyphs))
}

func TestAssembleLines_FoldsWrappedCells(t *testing.T) {
	glyphs := []glyph{
		{X: 10, Y: 700, W: 10, FontSize: 8, S: "M1"},
		{X: 100, Y: 700, W: 30, FontSize: 8, S: "welding of the"},
		{X: 200, Y: 700, W: 30, FontSize: 8, S: "piping"},
		{X: 100, Y: 687, W: 30, FontSize: 8, S: "main deck"},
		{X: 200, Y: 687, W: 30, FontSize: 8, S: "flushed"},
		{X: 100, Y: 674, W: 10, FontSize: 8, S: "done"},
		{X: 10, Y: 661, W: 10, FontSize: 8, S: "M2"},
		{X: 100, Y: 661, W: 10, FontSize: 8, S: "-"},
		{X: 200, Y: 661, W: 10, FontSize: 8, S: "-"},
	}

	lines := assembleLines(glyphs)
	require.Len(t, lines, 2)
	assert.Equal(t, "M1"+ColumnGap+"welding of the main deck done"+ColumnGap+"piping flushed", lines[0])
	assert.Equal(t, "M2"+ColumnGap+"-"+ColumnGap+"-", lines[1])
}

func TestAssembleLines_KeepsUnalignedIndentedLine(t *testing.T) {
	glyphs := []glyph{
		{X: 10, Y: 700, W: 10, FontSize: 8, S: "M1"},
		{X: 100, Y: 700, W: 10, FontSize: 8, S: "North"},
		{X: 150, Y: 687, W: 10, FontSize: 8, S: "Page 1"},
	}
	assert.Equal(t, []string{"M1" + ColumnGap + "North", "Page 1"}, assembleLines(glyphs))
}

func TestAssembleLines_Empty(t *testing.T) {
	assert.Nil(t, assembleLines(nil))
}

func TestReadPDF_Invalid(t *testing.T) {
	_, err := ReadPDF([]byte("definitely not a pdf"))
	assert.ErrorIs(t, err, ErrInvalidPDF)

	_, err = ReadPDF(nil)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

// ============================================================================
// Text
// ============================================================================

func TestReadText(t *testing.T) {
	in := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Module No.\tYard\nM1\tN\xfforth\n")...)

	text, err := ReadText(bytes.NewReader(in), 0)
	require.NoError(t, err)
	assert.Equal(t, "Module No.\tYard\nM1\tN?orth\n", text)
}

func TestReadText_Empty(t *testing.T) {
	_, err := ReadText(strings.NewReader(" \n\t\n"), 0)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		file string
		head []byte
		want Kind
	}{
		{"xlsx extension", "modules.XLSX", nil, KindSpreadsheet},
		{"pdf extension", "report.pdf", nil, KindPDF},
		{"text extension", "paste.tsv", nil, KindText},
		{"pdf magic", "upload", []byte("%PDF-1.4"), KindPDF},
		{"zip magic", "upload.bin", []byte("PK\x03\x04rest"), KindSpreadsheet},
		{"unknown", "notes.docx", []byte("xx"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.file, tt.head))
		})
	}
}

// ============================================================================
// Readers
// ============================================================================

func TestNewTextReader(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"bom removed", append([]byte{0xEF, 0xBB, 0xBF}, "hello"...), "hello"},
		{"no bom", []byte("hello"), "hello"},
		{"only bom", []byte{0xEF, 0xBB, 0xBF}, ""},
		{"partial bom kept", []byte{0xEF, 0xBB, 'a'}, "??a"},
		{"invalid byte replaced", []byte{'h', 'e', 0x80, 'l', 'o'}, "he?lo"},
		{"multibyte kept", []byte("Bay é"), "Bay é"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(NewTextReader(bytes.NewReader(tt.input), 0))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestNewTextReader_SplitRune(t *testing.T) {
	// "é" split across two reads must survive.
	r := NewTextReader(iotest.OneByteReader(strings.NewReader("café!")), 0)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "café!", string(got))
}

func TestNewTextReader_Limit(t *testing.T) {
	_, err := io.ReadAll(NewTextReader(strings.NewReader(strings.Repeat("x", 11)), 10))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	got, err := io.ReadAll(NewTextReader(strings.NewReader(strings.Repeat("x", 10)), 10))
	require.NoError(t, err)
	assert.Len(t, got, 10)
}
