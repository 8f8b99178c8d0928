package pipeline

import (
	"bytes"
	"strings"
	"testing"

	"github.com/satindex/satindex/internal/engine"
)

func TestYearlySeries_WriteCSV(t *testing.T) {
	s := &YearlySeries{
		Dataset: "Landsat-8",
		Index:   "NDVI",
		Fields:  []Field{FieldMean},
		Years: []YearValues{
			{Year: 2015, Status: StatusData, Values: map[Field]*float64{FieldMean: engine.Float(0.25)}},
			{Year: 2016, Status: StatusEmpty, Values: map[Field]*float64{FieldMean: nil}},
		},
	}

	var buf bytes.Buffer
	if err := s.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"dataset,index,year,status,min,mean,max",
		"Landsat-8,NDVI,2015,data,,0.25,",
		"Landsat-8,NDVI,2016,empty,,,",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d:\n%s", len(want), len(lines), buf.String())
	}
	for i := range want {
		if strings.TrimRight(lines[i], "\r") != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
