package sheet

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/samber/oops"
	"github.com/xuri/excelize/v2"
	"golang.org/x/xerrors"

	"github.com/vulnkit/vulnkit/pkg/set"
)

const defaultSheet = "Sheet1"

var ErrMissingColumn = xerrors.New("missing column")

// Sheet is one worksheet to write. The header goes on the first row.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]any
}

// ReadColumn returns the distinct non-blank values of the column named column, in order of appearance.
// The first row of the first sheet holds the column names; skipRows rows following it are ignored.
func ReadColumn(path, column string, skipRows int) ([]string, error) {
	rows, err := ReadRows(path, skipRows, column)
	if err != nil {
		return nil, err
	}

	seen := set.New[string]()
	var values []string
	for _, row := range rows {
		v := row[column]
		if v == "" || seen.Contains(v) {
			continue
		}
		seen.Append(v)
		values = append(values, v)
	}
	return values, nil
}

// ReadRows returns the rows of the first sheet as maps keyed by the requested column names, with trimmed values.
// Rows blank in every requested column are dropped. A requested column absent from the header fails with ErrMissingColumn.
func ReadRows(path string, skipRows int, columns ...string) ([]map[string]string, error) {
	eb := oops.With("file_path", path)

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, eb.Wrapf(err, "xlsx open error")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, eb.Errorf("no sheet")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, eb.With("sheet", sheets[0]).Wrapf(err, "xlsx read error")
	} else if len(rows) == 0 {
		return nil, eb.Wrapf(ErrMissingColumn, "empty sheet")
	}

	header := lo.Map(rows[0], func(h string, _ int) string { return strings.TrimSpace(h) })
	indices := make(map[string]int, len(columns))
	for _, column := range columns {
		i := lo.IndexOf(header, strings.TrimSpace(column))
		if i < 0 {
			return nil, eb.With("column", column).Wrap(ErrMissingColumn)
		}
		indices[column] = i
	}

	var records []map[string]string
	for _, row := range rows[min(1+skipRows, len(rows)):] {
		record := make(map[string]string, len(columns))
		blank := true
		for column, i := range indices {
			var v string
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			record[column] = v
			blank = blank && v == ""
		}
		if !blank {
			records = append(records, record)
		}
	}
	return records, nil
}

// Write creates the workbook at path with the given sheets, replacing any existing file.
func Write(path string, sheets ...Sheet) error {
	eb := oops.With("file_path", path)
	if len(sheets) == 0 {
		return eb.Errorf("no sheet to write")
	}

	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return eb.Wrapf(err, "style error")
	}

	for i, s := range sheets {
		eb := eb.With("sheet", s.Name)
		if i == 0 {
			err = f.SetSheetName(defaultSheet, s.Name)
		} else {
			_, err = f.NewSheet(s.Name)
		}
		if err != nil {
			return eb.Wrapf(err, "sheet create error")
		}
		if err = writeSheet(f, s, bold); err != nil {
			return eb.Wrapf(err, "sheet write error")
		}
	}
	f.SetActiveSheet(0)

	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eb.Wrapf(err, "mkdir error")
	}
	if err = f.SaveAs(path); err != nil {
		return eb.Wrapf(err, "xlsx save error")
	}
	return nil
}

func writeSheet(f *excelize.File, s Sheet, headerStyle int) error {
	sw, err := f.NewStreamWriter(s.Name)
	if err != nil {
		return err
	}

	header := lo.Map(s.Header, func(h string, _ int) any { return h })
	if err = sw.SetRow("A1", header, excelize.RowOpts{StyleID: headerStyle}); err != nil {
		return err
	}
	for i, row := range s.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err = sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	return sw.Flush()
}
