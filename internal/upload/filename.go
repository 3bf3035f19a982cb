// Package upload validates spreadsheet files against the backend's naming
// contract before any network call, so malformed uploads fail fast and
// never create a job.
package upload

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/cierreops/cierre-cli/internal/model"
)

// The backend requires PERIOD_TYPE_TAXID.xlsx, e.g.
// 202501_novedades_76123456-7.xlsx. PERIOD is YYYYMM, TYPE the document
// type token, TAXID a Chilean RUT with check digit.
var filenamePattern = regexp.MustCompile(`^(\d{6})_([A-Za-z]+)_(\d{7,8}-[\dkK])\.(xlsx|xls)$`)

// FileInfo is the metadata a valid filename encodes.
type FileInfo struct {
	Period       string
	DocumentType model.DocumentType
	TaxID        string
}

// ParseFilename validates name against the contract and extracts its parts.
func ParseFilename(name string) (*FileInfo, error) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return nil, eris.Errorf("upload: filename %q does not match PERIOD_TYPE_TAXID.xlsx", name)
	}

	period, token, taxID := m[1], m[2], m[3]

	month, err := strconv.Atoi(period[4:])
	if err != nil || month < 1 || month > 12 {
		return nil, eris.Errorf("upload: invalid period %q in filename", period)
	}

	docType, ok := model.ParseDocumentType(token)
	if !ok {
		return nil, eris.Errorf("upload: unknown document type %q in filename", token)
	}

	if !ValidRUT(taxID) {
		return nil, eris.Errorf("upload: invalid tax id %q in filename", taxID)
	}

	return &FileInfo{
		Period:       period,
		DocumentType: docType,
		TaxID:        strings.ToUpper(taxID),
	}, nil
}

// ValidRUT checks a Chilean RUT's modulo-11 check digit.
func ValidRUT(rut string) bool {
	dash := strings.LastIndex(rut, "-")
	if dash <= 0 || dash != len(rut)-2 {
		return false
	}
	body, check := rut[:dash], strings.ToUpper(rut[dash+1:])

	sum, factor := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		sum += d * factor
		factor++
		if factor > 7 {
			factor = 2
		}
	}

	var want string
	switch rem := 11 - sum%11; rem {
	case 11:
		want = "0"
	case 10:
		want = "K"
	default:
		want = strconv.Itoa(rem)
	}
	return check == want
}
