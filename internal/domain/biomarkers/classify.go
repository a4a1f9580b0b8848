package biomarkers

// Status enum for a classified measurement. Empty means no reference
// range is known for the marker; it is displayed but never scored.
type Status string

const (
	StatusLow     Status = "low"
	StatusOptimal Status = "optimal"
	StatusHigh    Status = "high"
)

// Measurement is one raw candidate as returned by extraction.
type Measurement struct {
	Name       string  `json:"name"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Confidence float64 `json:"confidence"`
}

// Biomarker is a classified measurement attached to a health record.
type Biomarker struct {
	Name           string  `json:"name"`
	Value          float64 `json:"value"`
	Unit           string  `json:"unit"`
	ReferenceRange string  `json:"reference_range,omitempty"`
	Status         Status  `json:"status,omitempty"`
	Category       string  `json:"category,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	Verified       bool    `json:"verified"`
}

// Scored reports whether the biomarker carries a known status.
func (b Biomarker) Scored() bool { return b.Status != "" }

// Classify normalizes the measurement name, looks up the reference
// range and derives a status. The optimal band is inclusive on both
// boundaries. Pure function, safe to re-run.
func Classify(m Measurement) Biomarker {
	b := Biomarker{
		Name:       Normalize(m.Name),
		Value:      m.Value,
		Unit:       m.Unit,
		Confidence: m.Confidence,
	}

	entry, ok := Lookup(m.Name)
	if !ok {
		return b
	}

	if b.Unit == "" {
		b.Unit = entry.Unit
	}
	b.ReferenceRange = entry.Optimal.String()
	b.Category = entry.Category

	switch {
	case m.Value < entry.Optimal.Min:
		b.Status = StatusLow
	case m.Value > entry.Optimal.Max:
		b.Status = StatusHigh
	default:
		b.Status = StatusOptimal
	}
	return b
}

// ClassifyAll maps Classify over a candidate list, keeping order.
func ClassifyAll(ms []Measurement) []Biomarker {
	out := make([]Biomarker, 0, len(ms))
	for _, m := range ms {
		out = append(out, Classify(m))
	}
	return out
}
