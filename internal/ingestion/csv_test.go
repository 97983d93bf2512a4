package ingestion

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCSV(t *testing.T) {
	in := "\ufeffOrder ID,Unit-Price,Customer Name,notes\n1,9.5,Ada,\n2,10,Grace,vip\n3,,Linus,\n"
	tbl, err := LoadCSV(context.Background(), strings.NewReader(in), "Q1 Sales.csv")
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^q1_sales_[0-9a-f]{8}$`), tbl.Name)
	assert.Equal(t, "Q1 Sales.csv", tbl.Source)
	assert.Equal(t, []TableColumn{
		{Name: "order_id", Type: TypeBigInt},
		{Name: "unit_price", Type: TypeDouble},
		{Name: "customer_name", Type: TypeText},
		{Name: "notes", Type: TypeText},
	}, tbl.Columns)
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, []any{int64(1), 9.5, "Ada", nil}, tbl.Rows[0])
	assert.Equal(t, []any{int64(2), float64(10), "Grace", "vip"}, tbl.Rows[1])
	assert.Nil(t, tbl.Rows[2][1])
}

func TestLoadCSV_Errors(t *testing.T) {
	_, err := LoadCSV(context.Background(), strings.NewReader(""), "empty.csv")
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = LoadCSV(context.Background(), strings.NewReader("a,b\n1,2,3\n"), "bad.csv")
	assert.ErrorIs(t, err, ErrInvalidCSV)

	_, err = LoadCSV(context.Background(), strings.NewReader("a\n\"unterminated\n"), "bad.csv")
	assert.ErrorIs(t, err, ErrInvalidCSV)
}

func TestLoadCSV_DuplicateAndBlankHeaders(t *testing.T) {
	tbl, err := LoadCSV(context.Background(), strings.NewReader("Name,name,,2nd\nx,y,z,w\n"), "t.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "name_1", "column_3", "_2nd"}, tbl.ColumnNames())
}

func TestSanitizeIdentifier(t *testing.T) {
	tests := map[string]string{
		"Total Sales":   "total_sales",
		"unit-price":    "unit_price",
		" Amount ($) ":  "amount_",
		"2024 revenue":  "_2024_revenue",
		"already_clean": "already_clean",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeIdentifier(in), in)
	}
}
