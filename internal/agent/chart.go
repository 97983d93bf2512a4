package agent

import (
	"fmt"
	"sort"
	"strings"
)

// Dataset is one numeric series of a chart.
type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// Point is a scatter plot point.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ChartData converts serialized rows into the payload for chart. Rows are maps
// as produced by the SQL executor; unknown charts and empty input give nil.
func ChartData(chart string, rows []any) map[string]any {
	records := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		if m, ok := r.(map[string]any); ok {
			records = append(records, m)
		}
	}
	if len(records) == 0 {
		return nil
	}
	labelCol, numeric := classify(records)

	switch strings.ToLower(chart) {
	case ChartBar, ChartHorizontalBar, ChartLine:
		labelCol, numeric := labelled(labelCol, numeric)
		if len(numeric) == 0 {
			return nil
		}
		labels := labelsFor(records, labelCol)
		datasets := make([]Dataset, 0, len(numeric))
		for _, col := range numeric {
			datasets = append(datasets, Dataset{Label: col, Data: column(records, col)})
		}
		return map[string]any{"labels": labels, "datasets": datasets}
	case ChartPie:
		labelCol, numeric := labelled(labelCol, numeric)
		if len(numeric) == 0 {
			return nil
		}
		return map[string]any{"labels": labelsFor(records, labelCol), "values": column(records, numeric[0])}
	case ChartScatter:
		if len(numeric) < 2 {
			return nil
		}
		xs, ys := column(records, numeric[0]), column(records, numeric[1])
		points := make([]Point, len(xs))
		for i := range xs {
			points[i] = Point{X: xs[i], Y: ys[i]}
		}
		return map[string]any{
			"series": []map[string]any{{"x_label": numeric[0], "y_label": numeric[1], "data": points}},
		}
	}
	return nil
}

// classify picks the first non-numeric column as the label column and returns
// the numeric columns, both in sorted key order.
func classify(records []map[string]any) (string, []string) {
	keys := make([]string, 0, len(records[0]))
	for k := range records[0] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var label string
	var numeric []string
	for _, k := range keys {
		if isNumericColumn(records, k) {
			numeric = append(numeric, k)
		} else if label == "" {
			label = k
		}
	}
	return label, numeric
}

// labelled uses the first numeric column as labels when there is no other.
func labelled(label string, numeric []string) (string, []string) {
	if label == "" && len(numeric) > 1 {
		return numeric[0], numeric[1:]
	}
	return label, numeric
}

func isNumericColumn(records []map[string]any, key string) bool {
	seen := false
	for _, r := range records {
		v, ok := r[key]
		if !ok || v == nil {
			continue
		}
		if _, ok := toFloat(v); !ok {
			return false
		}
		seen = true
	}
	return seen
}

func labelsFor(records []map[string]any, col string) []string {
	labels := make([]string, len(records))
	for i, r := range records {
		if col == "" || r[col] == nil {
			labels[i] = fmt.Sprint(i + 1)
			continue
		}
		labels[i] = fmt.Sprint(r[col])
	}
	return labels
}

func column(records []map[string]any, col string) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i], _ = toFloat(r[col])
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
