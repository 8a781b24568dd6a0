package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Floats is a float64 slice whose JSON form carries missing values (NaN)
// as null, which encoding/json cannot represent natively.
type Floats []float64

// MarshalJSON writes NaN and ±Inf as null.
func (f Floats) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			buf.WriteString("null")
			continue
		}
		buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads null entries back as NaN.
func (f *Floats) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding floats: %w", err)
	}
	if raw == nil {
		*f = nil
		return nil
	}
	out := make(Floats, len(raw))
	for i, p := range raw {
		if p == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *p
		}
	}
	*f = out
	return nil
}

// FormatRaw renders v the way ValueRaw stores it: "." for missing values.
func FormatRaw(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Nullable returns nil for NaN and ±Inf, otherwise a pointer to v.
func Nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// FromNullable is the inverse of Nullable.
func FromNullable(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

type observationJSON struct {
	Date     time.Time `json:"date"`
	Value    *float64  `json:"value"`
	ValueRaw string    `json:"value_raw"`
}

// MarshalJSON writes a missing value as null.
func (o Observation) MarshalJSON() ([]byte, error) {
	return json.Marshal(observationJSON{Date: o.Date, Value: Nullable(o.Value), ValueRaw: o.ValueRaw})
}

// UnmarshalJSON reads a null value back as NaN.
func (o *Observation) UnmarshalJSON(data []byte) error {
	var aux observationJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("decoding observation: %w", err)
	}
	*o = Observation{Date: aux.Date, Value: FromNullable(aux.Value), ValueRaw: aux.ValueRaw}
	return nil
}

// spectrumJSON mirrors Spectrum with the complex coefficients as [re, im]
// pairs, which encoding/json cannot write for complex128.
type spectrumJSON struct {
	SeriesID     string          `json:"series_id"`
	Kind         string          `json:"kind"`
	N            int             `json:"n"`
	Points       []SpectrumPoint `json:"points"`
	Coefficients [][2]float64    `json:"coefficients,omitempty"`
}

// MarshalJSON writes Coefficients as [[re, im], ...].
func (s Spectrum) MarshalJSON() ([]byte, error) {
	aux := spectrumJSON{SeriesID: s.SeriesID, Kind: s.Kind, N: s.N, Points: s.Points}
	if len(s.Coefficients) > 0 {
		aux.Coefficients = make([][2]float64, len(s.Coefficients))
		for i, c := range s.Coefficients {
			aux.Coefficients[i] = [2]float64{real(c), imag(c)}
		}
	}
	return json.Marshal(aux)
}

// UnmarshalJSON reads [re, im] pairs back into complex coefficients.
func (s *Spectrum) UnmarshalJSON(data []byte) error {
	var aux spectrumJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = Spectrum{SeriesID: aux.SeriesID, Kind: aux.Kind, N: aux.N, Points: aux.Points}
	if len(aux.Coefficients) > 0 {
		s.Coefficients = make([]complex128, len(aux.Coefficients))
		for i, p := range aux.Coefficients {
			s.Coefficients[i] = complex(p[0], p[1])
		}
	}
	return nil
}
