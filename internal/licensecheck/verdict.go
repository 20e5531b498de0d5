package licensecheck

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// VerdictKind is the outcome of a single check.
type VerdictKind int

const (
	NotApplicable VerdictKind = iota
	Succeeded
	Failed
)

func (k VerdictKind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "not_applicable"
	}
}

func (k VerdictKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *VerdictKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "succeeded":
		*k = Succeeded
	case "failed":
		*k = Failed
	case "not_applicable":
		*k = NotApplicable
	default:
		return fmt.Errorf("unknown verdict %q", text)
	}
	return nil
}

// Verdict is the result of one check.
type Verdict struct {
	Kind VerdictKind `json:"result"`

	// ShortName is the name of the check that produced the verdict
	ShortName string `json:"check"`

	// Message is a human readable explanation
	Message string `json:"message"`
}

func (v Verdict) String() string {
	return v.ShortName + ": " + v.Message
}

// Result is the aggregate of all verdicts from one run, in check order.
type Result struct {
	RunID    uuid.UUID `json:"run_id"`
	Verdicts []Verdict `json:"verdicts"`
}

// Succeeded reports whether no verdict is Failed.
// NotApplicable verdicts, and an empty result, count as success.
func (r Result) Succeeded() bool {
	for _, v := range r.Verdicts {
		if v.Kind == Failed {
			return false
		}
	}
	return true
}

// Summarize returns "<shortName>: <message>" for each verdict, in check order.
func (r Result) Summarize() []string {
	summary := make([]string, len(r.Verdicts))
	for i, v := range r.Verdicts {
		summary[i] = v.String()
	}
	return summary
}

// Failures returns the failed verdicts.
func (r Result) Failures() []Verdict {
	var failed []Verdict
	for _, v := range r.Verdicts {
		if v.Kind == Failed {
			failed = append(failed, v)
		}
	}
	return failed
}

// MarshalJSON adds the derived succeeded flag and summary.
func (r Result) MarshalJSON() ([]byte, error) {
	type result Result
	verdicts := r.Verdicts
	if verdicts == nil {
		verdicts = []Verdict{}
	}
	return json.Marshal(struct {
		result
		Verdicts  []Verdict `json:"verdicts"`
		Succeeded bool      `json:"succeeded"`
		Summary   []string  `json:"summary"`
	}{
		result:    result(r),
		Verdicts:  verdicts,
		Succeeded: r.Succeeded(),
		Summary:   r.Summarize(),
	})
}

// String joins the summary lines.
func (r Result) String() string {
	return strings.Join(r.Summarize(), "\n")
}
