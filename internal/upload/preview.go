package upload

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// PreviewHeaders opens the workbook locally and returns the first row of
// the first sheet. The server extracts headers during analizando_hdrs; this
// runs the same sanity check up front so a header-less file is rejected
// before it is uploaded.
func PreviewHeaders(path string) ([]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "upload: open %s", path)
	}

	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("upload: %s has no sheets", path)
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("upload: %s has an empty first sheet", path)
	}

	var headers []string
	blank := true
	for _, cell := range sheet.Rows[0].Cells {
		v := strings.TrimSpace(cell.String())
		headers = append(headers, v)
		if v != "" {
			blank = false
		}
	}
	if blank {
		return nil, eris.Errorf("upload: %s has a blank header row", path)
	}
	return headers, nil
}
