package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// BreachReport is one detected rule breach.
type BreachReport struct {
	RuleID      string    `json:"rule_id"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
}

func (r BreachReport) String() string {
	return fmt.Sprintf("rule %s breached at %s: %s", r.RuleID, r.Timestamp.Format(time.RFC3339), r.Description)
}

// ParseDiagnostic describes an extraction reply that could not be turned
// into reports. It carries the raw reply for logging and storage.
type ParseDiagnostic struct {
	Raw string
	Err error
}

func (d *ParseDiagnostic) Error() string {
	return fmt.Sprintf("unparseable extraction reply: %v", d.Err)
}

func (d *ParseDiagnostic) Unwrap() error {
	return d.Err
}

func (d *ParseDiagnostic) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error string `json:"error"`
		Raw   string `json:"raw"`
	}{Error: d.Error(), Raw: d.Raw})
}

var (
	errNoAnalysis = errors.New(`reply has no "analysis" array`)
	errNullItem   = errors.New(`"analysis" contains a null entry`)
)

// flexibleID accepts a JSON string, number or null.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("rule_id must be a string or number, got %s", b)
	}
	*f = flexibleID(n.String())
	return nil
}

type extractionReply struct {
	Analysis *[]*struct {
		RuleID      flexibleID `json:"rule_id"`
		Description *string    `json:"description"`
	} `json:"analysis"`
}

// ParseReports decodes an extraction reply of the form
// {"analysis": [{"rule_id": ..., "description": ...}, ...]}. Every report is
// stamped with now; timestamps in the reply are ignored. A reply that does not
// decode yields no reports and a non-nil diagnostic, never a partial list.
func ParseReports(raw string, now time.Time) ([]BreachReport, *ParseDiagnostic) {
	raw = strings.TrimSpace(raw)

	var reply extractionReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return []BreachReport{}, &ParseDiagnostic{Raw: raw, Err: err}
	}
	if reply.Analysis == nil {
		return []BreachReport{}, &ParseDiagnostic{Raw: raw, Err: errNoAnalysis}
	}

	reports := make([]BreachReport, 0, len(*reply.Analysis))
	for _, item := range *reply.Analysis {
		if item == nil {
			return []BreachReport{}, &ParseDiagnostic{Raw: raw, Err: errNullItem}
		}
		r := BreachReport{RuleID: string(item.RuleID), Timestamp: now}
		if item.Description != nil {
			r.Description = *item.Description
		}
		reports = append(reports, r)
	}
	return reports, nil
}
