// Package payload turns submission form fields into the uris:submit request
// body.
package payload

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValidationError reports missing or malformed caller input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

// Fields is the typed submission form. Only URI is required.
type Fields struct {
	URI       string
	AbuseType string
	Score     string
	Level     string
	Labels    []string
	Comments  string
	Platform  string
	Regions   string
}

type Payload struct {
	Submission      Submission       `json:"submission"`
	ThreatInfo      *ThreatInfo      `json:"threatInfo,omitempty"`
	ThreatDiscovery *ThreatDiscovery `json:"threatDiscovery,omitempty"`
}

type Submission struct {
	URI string `json:"uri"`
}

type ThreatInfo struct {
	AbuseType           string               `json:"abuseType,omitempty"`
	ThreatConfidence    *ThreatConfidence    `json:"threatConfidence,omitempty"`
	ThreatJustification *ThreatJustification `json:"threatJustification,omitempty"`
}

// ThreatConfidence carries either Score or Level, never both.
type ThreatConfidence struct {
	Score *float64 `json:"score,omitempty"`
	Level string   `json:"level,omitempty"`
}

type ThreatJustification struct {
	Labels   []string `json:"labels,omitempty"`
	Comments []string `json:"comments,omitempty"`
}

type ThreatDiscovery struct {
	Platform    string   `json:"platform,omitempty"`
	RegionCodes []string `json:"regionCodes,omitempty"`
}

// Build composes the request body. Absent optional fields leave their parent
// section out entirely.
func Build(f Fields) (Payload, error) {
	uri := strings.TrimSpace(f.URI)
	if uri == "" {
		return Payload{}, &ValidationError{Field: "uri", Msg: "uri is required"}
	}
	p := Payload{Submission: Submission{URI: uri}}

	info := func() *ThreatInfo {
		if p.ThreatInfo == nil {
			p.ThreatInfo = &ThreatInfo{}
		}
		return p.ThreatInfo
	}

	if f.AbuseType != "" {
		info().AbuseType = f.AbuseType
	}

	if f.Score != "" {
		score, err := strconv.ParseFloat(strings.TrimSpace(f.Score), 64)
		if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
			return Payload{}, &ValidationError{Field: "score", Msg: fmt.Sprintf("could not convert %q to a number", f.Score)}
		}
		info().ThreatConfidence = &ThreatConfidence{Score: &score}
	} else if f.Level != "" {
		info().ThreatConfidence = &ThreatConfidence{Level: f.Level}
	}

	// Labels pass through as given; Web Risk judges their values.
	if len(f.Labels) > 0 || f.Comments != "" {
		tj := &ThreatJustification{Labels: f.Labels}
		if f.Comments != "" {
			tj.Comments = []string{f.Comments}
		}
		info().ThreatJustification = tj
	}

	if f.Platform != "" || f.Regions != "" {
		td := &ThreatDiscovery{Platform: f.Platform, RegionCodes: RegionCodes(f.Regions)}
		if td.Platform != "" || len(td.RegionCodes) > 0 {
			p.ThreatDiscovery = td
		}
	}
	return p, nil
}

// RegionCodes splits a comma-separated list, trimming and uppercasing each
// entry and dropping empties.
func RegionCodes(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, strings.ToUpper(r))
		}
	}
	return out
}

// JSON returns the wire encoding.
func (p Payload) JSON() (json.RawMessage, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return b, nil
}
