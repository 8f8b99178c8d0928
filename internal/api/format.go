package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/satindex/satindex/internal/pipeline"
	"github.com/vmihailenco/msgpack/v5"
)

// Response formats selected with the format query parameter.
const (
	FormatJSON    = "json"
	FormatMsgPack = "msgpack"
	FormatCSV     = "csv"
)

// responseFormat returns the requested format. JSON is the default.
func responseFormat(r *http.Request) (string, error) {
	switch f := strings.ToLower(r.URL.Query().Get("format")); f {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatMsgPack, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q (use json, msgpack or csv)", f)
	}
}

// WriteMsgPack writes v as MessagePack using its json struct tags.
func WriteMsgPack(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/x-msgpack")
	w.WriteHeader(status)

	encoder := msgpack.NewEncoder(w)
	encoder.SetCustomStructTag("json")
	if err := encoder.Encode(v); err != nil {
		slog.Error("failed to encode msgpack response",
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// WriteSeriesCSV writes a series as a CSV attachment.
func WriteSeriesCSV(w http.ResponseWriter, s *pipeline.YearlySeries) error {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.Dataset+"_"+s.Index+".csv"))
	w.WriteHeader(http.StatusOK)

	if err := s.WriteCSV(w); err != nil {
		slog.Error("failed to encode CSV response",
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// writeFormatted writes v in the requested format. CSV only applies to series.
func writeFormatted(w http.ResponseWriter, format string, status int, v any) {
	switch format {
	case FormatMsgPack:
		WriteMsgPack(w, status, v)
	case FormatCSV:
		if s, ok := v.(*pipeline.YearlySeries); ok {
			WriteSeriesCSV(w, s)
			return
		}
		WriteInvalidParameter(w, "csv is only available for series")
	default:
		WriteJSON(w, status, v)
	}
}
