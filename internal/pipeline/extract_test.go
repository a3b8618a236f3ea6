package pipeline

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"hopedata/internal/source"
)

func mkXLSX(rows [][]any) []byte {
	return mkWorkbook(map[string][][]any{"Sheet1": rows}, []string{"Sheet1"})
}

// mkWorkbook writes sheets in the given order; the first name replaces the
// default sheet.
func mkWorkbook(sheets map[string][][]any, order []string) []byte {
	f := excelize.NewFile()
	for i, name := range order {
		if i == 0 {
			_ = f.SetSheetName(f.GetSheetName(0), name)
		} else {
			_, _ = f.NewSheet(name)
		}
		for r, row := range sheets[name] {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
				_ = f.SetCellValue(name, cell, v)
			}
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func TestParseCSVSkipsTitleRows(t *testing.T) {
	data := "\xef\xbb\xbfHope Foundation export,,\n,,\nPatient ID#,Gender,Pt City\n1,femal,Omaha\n2,M,\"Council Bluffs\"\n"
	batch, err := ExtractBatch(source.Payload{Name: "requests.csv", Data: []byte(data)})
	require.NoError(t, err)
	assert.Equal(t, []string{"Patient ID#", "Gender", "Pt City"}, batch.Columns)
	require.Len(t, batch.Rows, 2)
	assert.Equal(t, "Council Bluffs", batch.Rows[1][2])
}

func TestParseXLSXPicksRecordsSheet(t *testing.T) {
	blob := mkWorkbook(map[string][][]any{
		"Notes": {
			{"Read me first"},
			{"Updated weekly by the grants team"},
		},
		"Data": {
			{"Grant Req Date", "Gender", "Pt State", "Amount"},
			{"1/10/2023", "femal", "Nebrask", 250},
			{},
			{"2/1/2023", "Male", "IA", 99.5},
		},
	}, []string{"Notes", "Data"})

	batch, err := parseXLSX(blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"Grant Req Date", "Gender", "Pt State", "Amount"}, batch.Columns)
	require.Len(t, batch.Rows, 2)
	assert.Equal(t, "250", batch.Rows[0][3])
	assert.Equal(t, "99.5", batch.Rows[1][3])
}

func TestParseXLSXNoRecords(t *testing.T) {
	blob := mkXLSX([][]any{{"nothing", "to", "see"}})
	_, err := parseXLSX(blob)
	assert.ErrorIs(t, err, ErrNoRecordsSheet)
}

func TestParseXLSXPadsShortRows(t *testing.T) {
	blob := mkXLSX([][]any{
		{"Gender", "Race", "Pt City"},
		{"f"},
	})
	batch, err := parseXLSX(blob)
	require.NoError(t, err)
	require.Len(t, batch.Rows, 1)
	assert.Equal(t, []string{"f", "", ""}, batch.Rows[0])
}

func TestParseHTMLTablePicksBestTable(t *testing.T) {
	html := `<html><body>
<table><tr><td>Home</td><td>Reports</td></tr></table>
<table>
  <tr><th>Gender</th><th>Race</th><th>Type of Assistance (CLASS)</th></tr>
  <tr><td>femal</td><td>white</td><td>Gas</td></tr>
  <tr><td> F </td><td></td><td>Hotel</td></tr>
</table></body></html>`
	batch, err := parseHTMLTable(html)
	require.NoError(t, err)
	require.Len(t, batch.Rows, 2)
	assert.Equal(t, "Type of Assistance (CLASS)", batch.Columns[2])
	assert.Equal(t, "F", batch.Rows[1][0])
}

const emlWithCSV = "From: grants@example.org\r\n" +
	"To: reports@example.org\r\n" +
	"Subject: Weekly export\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"XYZ\"\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Export attached.\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/csv; name=\"requests.csv\"\r\n" +
	"Content-Disposition: attachment; filename=\"requests.csv\"\r\n" +
	"\r\n" +
	"Gender,Pt State\r\n" +
	"femal,Nebrask\r\n" +
	"--XYZ--\r\n"

func TestParseEMLAttachment(t *testing.T) {
	batch, err := ExtractBatch(source.Payload{Name: "weekly.eml", Format: source.FormatEML, Data: []byte(emlWithCSV)})
	require.NoError(t, err)
	require.Len(t, batch.Rows, 1)
	assert.Equal(t, "Nebrask", batch.Rows[0][1])
}

func TestParseEMLBodyTable(t *testing.T) {
	raw := "From: grants@example.org\r\n" +
		"Subject: Export\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<table><tr><th>Gender</th><th>Pt City</th></tr><tr><td>male</td><td>omaha</td></tr></table>\r\n"
	batch, err := parseEML([]byte(raw))
	require.NoError(t, err)
	require.Len(t, batch.Rows, 1)
	assert.Equal(t, "omaha", batch.Rows[0][1])
}

func TestExtractRows(t *testing.T) {
	batch, err := ExtractBatch(source.Payload{Name: "sheets:abc", Format: source.FormatRows, Rows: [][]string{
		{"Gender", "Amount"},
		{"femal", "$10"},
	}})
	require.NoError(t, err)
	require.Len(t, batch.Rows, 1)
	assert.Equal(t, "$10", batch.Rows[0][1])
}

func TestExtractUnsupported(t *testing.T) {
	_, err := ExtractBatch(source.Payload{Name: "scan.pdf", Data: []byte("%PDF")})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFormatFromName(t *testing.T) {
	cases := map[string]string{
		"export.CSV":                   source.FormatCSV,
		"/tmp/requests.xlsx":           source.FormatXLSX,
		"https://host/report.html?x=1": source.FormatHTML,
		"weekly.eml":                   source.FormatEML,
		"notes.docx":                   "",
	}
	for name, want := range cases {
		assert.Equal(t, want, FormatFromName(name), name)
	}
}

func TestDetectHeaderRow(t *testing.T) {
	rows := [][]string{
		{"Hope Foundation"},
		{},
		{"Patient ID#", "Grant Req Date", "Pt City (current)", "Remaining Balance"},
		{"1", "1/2/2023", "Omaha", "0"},
	}
	res := DetectHeaderRow(rows)
	assert.True(t, res.IsRecords)
	assert.Equal(t, 2, res.HeaderRow)
	assert.Equal(t, 3.5/8, res.Score)

	res = DetectHeaderRow([][]string{{"a", "b"}, {"c", "d"}})
	assert.False(t, res.IsRecords)
	assert.Equal(t, -1, res.HeaderRow)
}
