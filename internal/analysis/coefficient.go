package analysis

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/montanaflynn/stats"
)

// Coefficient is a correlation value. NaN means undefined (too few shared games or no variance)
// and is carried through to JSON null and SQL NULL rather than replaced by a number.
type Coefficient float64

// Undefined returns the undefined coefficient.
func Undefined() Coefficient {
	return Coefficient(math.NaN())
}

// Defined reports whether the coefficient holds a number.
func (c Coefficient) Defined() bool {
	return !math.IsNaN(float64(c))
}

// Float64 returns the raw value (NaN when undefined).
func (c Coefficient) Float64() float64 {
	return float64(c)
}

// Round2 rounds to two decimal places, half away from zero. Undefined stays undefined.
func Round2(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	r, err := stats.Round(v, 2)
	if err != nil {
		return math.NaN()
	}
	return r
}

func (c Coefficient) String() string {
	if !c.Defined() {
		return ""
	}
	return strconv.FormatFloat(float64(c), 'f', 2, 64)
}

// ParseCoefficient reads the String form back; an empty string is undefined.
func ParseCoefficient(s string) (Coefficient, error) {
	if s == "" || s == "NaN" || s == "nan" {
		return Undefined(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Undefined(), err
	}
	return Coefficient(v), nil
}

func (c Coefficient) MarshalJSON() ([]byte, error) {
	if !c.Defined() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(c))
}

func (c *Coefficient) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = Undefined()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = Coefficient(v)
	return nil
}
