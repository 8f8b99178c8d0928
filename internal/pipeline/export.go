package pipeline

import (
	"io"
	"strconv"

	"github.com/gocarina/gocsv"
)

// SeriesRow is the flat CSV form of a YearValues entry. Unrequested or
// missing statistics are blank.
type SeriesRow struct {
	Dataset string `csv:"dataset"`
	Index   string `csv:"index"`
	Year    int    `csv:"year"`
	Status  string `csv:"status"`
	Min     string `csv:"min"`
	Mean    string `csv:"mean"`
	Max     string `csv:"max"`
}

// Rows flattens the series in year order.
func (s *YearlySeries) Rows() []*SeriesRow {
	rows := make([]*SeriesRow, 0, len(s.Years))
	for _, y := range s.Years {
		rows = append(rows, &SeriesRow{
			Dataset: s.Dataset,
			Index:   s.Index,
			Year:    y.Year,
			Status:  string(y.Status),
			Min:     formatValue(y.Values[FieldMin]),
			Mean:    formatValue(y.Values[FieldMean]),
			Max:     formatValue(y.Values[FieldMax]),
		})
	}
	return rows
}

// WriteCSV writes the series with a header row.
func (s *YearlySeries) WriteCSV(w io.Writer) error {
	rows := s.Rows()
	return gocsv.Marshal(&rows, w)
}

func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
