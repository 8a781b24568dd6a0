package render

import (
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/derickschaefer/tsprep/internal/model"
)

// ObsRow is the parquet schema for plain and smoothed series. Missing
// values are null.
type ObsRow struct {
	SeriesID string    `parquet:"series_id,snappy,dict"`
	Date     time.Time `parquet:"date,snappy"`
	Value    *float64  `parquet:"value,optional,snappy"`
	Valid    *bool     `parquet:"valid,optional"`
}

// MaskRow is the parquet schema for anomaly reports, one row per flagged point.
type MaskRow struct {
	SeriesID string    `parquet:"series_id,snappy,dict"`
	Method   string    `parquet:"method,snappy,dict"`
	Index    int64     `parquet:"index,snappy"`
	Date     time.Time `parquet:"date,snappy"`
	Value    float64   `parquet:"value,snappy"`
}

// ComponentRow is the parquet schema for decompositions.
type ComponentRow struct {
	SeriesID string    `parquet:"series_id,snappy,dict"`
	Date     time.Time `parquet:"date,snappy"`
	Observed *float64  `parquet:"observed,optional,snappy"`
	Trend    *float64  `parquet:"trend,optional,snappy"`
	Seasonal *float64  `parquet:"seasonal,optional,snappy"`
	Residual *float64  `parquet:"residual,optional,snappy"`
}

// SpectrumRow is the parquet schema for spectra. Re and Im are null for
// periodograms.
type SpectrumRow struct {
	SeriesID  string   `parquet:"series_id,snappy,dict"`
	K         int64    `parquet:"k,snappy"`
	Frequency float64  `parquet:"frequency,snappy"`
	Power     float64  `parquet:"power,snappy"`
	Re        *float64 `parquet:"re,optional,snappy"`
	Im        *float64 `parquet:"im,optional,snappy"`
}

// renderParquet writes point-wise kinds as a parquet file. Scalar results
// (tests, summaries) have no row form and are rejected.
func renderParquet(w io.Writer, result *model.Result) error {
	switch d := result.Data.(type) {
	case model.SeriesData:
		rows := make([]ObsRow, len(d.Obs))
		for i, o := range d.Obs {
			rows[i] = ObsRow{SeriesID: d.SeriesID, Date: o.Date, Value: ptr(o.Value)}
		}
		return writeParquet(w, rows)

	case model.SmoothedSeries:
		rows := make([]ObsRow, len(d.Values))
		for i, v := range d.Values {
			valid := d.Valid[i]
			rows[i] = ObsRow{SeriesID: d.SeriesID, Date: d.Dates[i], Value: ptr(v), Valid: &valid}
		}
		return writeParquet(w, rows)

	case model.AnomalyReport:
		return writeParquet(w, maskRows(d))
	case []model.AnomalyReport:
		var rows []MaskRow
		for _, r := range d {
			rows = append(rows, maskRows(r)...)
		}
		return writeParquet(w, rows)

	case model.Decomposition:
		rows := make([]ComponentRow, len(d.Dates))
		for i, dt := range d.Dates {
			rows[i] = ComponentRow{
				SeriesID: d.SeriesID,
				Date:     dt,
				Observed: ptr(d.Observed[i]),
				Trend:    ptr(d.Trend[i]),
				Seasonal: ptr(d.Seasonal[i]),
				Residual: ptr(d.Residual[i]),
			}
		}
		return writeParquet(w, rows)

	case model.Spectrum:
		rows := make([]SpectrumRow, len(d.Points))
		for k, p := range d.Points {
			rows[k] = SpectrumRow{SeriesID: d.SeriesID, K: int64(k), Frequency: p.Frequency, Power: p.Power}
			if k < len(d.Coefficients) {
				rows[k].Re, rows[k].Im = ptr(real(d.Coefficients[k])), ptr(imag(d.Coefficients[k]))
			}
		}
		return writeParquet(w, rows)
	}
	return fmt.Errorf("parquet output is not supported for %s results", result.Kind)
}

func maskRows(r model.AnomalyReport) []MaskRow {
	rows := make([]MaskRow, len(r.Anomalies))
	for i, p := range r.Anomalies {
		rows[i] = MaskRow{SeriesID: r.SeriesID, Method: r.Method, Index: int64(p.Index), Date: p.Date, Value: p.Value}
	}
	return rows
}

// writeParquet writes rows with a schema inferred from the struct tags of T.
func writeParquet[T any](w io.Writer, rows []T) error {
	writer := parquet.NewGenericWriter[T](w)
	if _, err := writer.Write(rows); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing parquet writer: %w", err)
	}
	return nil
}
