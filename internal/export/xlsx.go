package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pulsoweb/pulso-gateway/internal/record"
)

// Column maps a spreadsheet header to a document field.
type Column struct {
	Header string
	Key    string
}

var columnSpecs = map[string][]Column{
	"webhook": {
		{Header: "Nome", Key: "name"},
		{Header: "Email", Key: "email"},
		{Header: "Mensagem", Key: "message"},
		{Header: "Sessão", Key: "sessionId"},
		{Header: "Produto", Key: "produto"},
		{Header: "Data", Key: "createdAt"},
	},
}

var defaultColumns = []Column{
	{Header: "Sessão", Key: "sessionId"},
	{Header: "Produto", Key: "produto"},
	{Header: "Data", Key: "createdAt"},
}

// Columns returns the column spec for a collection, falling back to the
// correlation-pair columns for collections without a dedicated spec.
func Columns(collection string) []Column {
	if cols, ok := columnSpecs[collection]; ok {
		return cols
	}
	return defaultColumns
}

// Write serialises the records as one worksheet: a header row followed by
// one row per record, in input order.
func Write(w io.Writer, sheet string, cols []Column, docs []record.Document) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	for i, col := range cols {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col.Header); err != nil {
			return err
		}
	}

	for row, doc := range docs {
		for i, col := range cols {
			cell, err := excelize.CoordinatesToCellName(i+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, cellValue(doc[col.Key])); err != nil {
				return err
			}
		}
	}

	return f.Write(w)
}

func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string, bool, float64, float32, int, int32, int64:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		// Nested maps and sequences go in as compact JSON.
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
