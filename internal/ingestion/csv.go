package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Column types inferred for uploaded spreadsheets.
const (
	TypeBigInt = "BIGINT"
	TypeDouble = "DOUBLE PRECISION"
	TypeText   = "TEXT"
)

var (
	ErrEmptyFile  = errors.New("file is empty")
	ErrInvalidCSV = errors.New("invalid CSV")
)

// Table is a parsed spreadsheet ready to be written to the database.
type Table struct {
	Name    string // physical table name
	Source  string // uploaded file name
	Columns []TableColumn
	Rows    [][]any
}

type TableColumn struct {
	Name string
	Type string
}

// ColumnNames returns the sanitized column names in order.
func (t *Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

var nonIdent = regexp.MustCompile(`[^a-z0-9_]+`)

// SanitizeIdentifier lower-cases name and replaces spaces and dashes with
// underscores. Other characters that are not valid in an unquoted identifier
// are dropped.
func SanitizeIdentifier(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	s = nonIdent.ReplaceAllString(s, "")
	if s != "" && s[0] >= '0' && s[0] <= '9' {
		s = "_" + s
	}
	return s
}

// TableName derives a unique table name from an uploaded file name.
func TableName(filename string) string {
	base := filepath.Base(filename)
	base = SanitizeIdentifier(strings.TrimSuffix(base, filepath.Ext(base)))
	if base == "" {
		base = "dataset"
	}
	return base + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// LoadCSV reads a CSV with a header row and infers a column type per column.
func LoadCSV(ctx context.Context, r io.Reader, filename string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var records [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
		}
		records = append(records, rec)
	}

	t := &Table{Name: TableName(filename), Source: filepath.Base(filename)}
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := SanitizeIdentifier(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n)
		} else {
			seen[name] = 1
		}
		t.Columns = append(t.Columns, TableColumn{Name: name, Type: inferType(records, i)})
	}

	t.Rows = make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(t.Columns))
		for j, col := range t.Columns {
			row[j] = convert(strings.TrimSpace(rec[j]), col.Type)
		}
		t.Rows[i] = row
	}
	return t, nil
}

func inferType(records [][]string, col int) string {
	typ := TypeBigInt
	seen := false
	for _, rec := range records {
		v := strings.TrimSpace(rec[col])
		if v == "" {
			continue
		}
		seen = true
		if typ == TypeBigInt {
			if _, err := strconv.ParseInt(v, 10, 64); err == nil {
				continue
			}
			typ = TypeDouble
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return TypeText
		}
	}
	if !seen {
		return TypeText
	}
	return typ
}

func convert(v, typ string) any {
	if v == "" {
		return nil
	}
	switch typ {
	case TypeBigInt:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case TypeDouble:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return v
}
