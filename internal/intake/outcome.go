package intake

import "strings"

// Outcome is what a finished assistant turn says about the assessment.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeComplete
	OutcomeReportFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeReportFailed:
		return "report_failed"
	default:
		return "none"
	}
}

// The backend has no dedicated terminal event yet, so the outcome is read
// from the assistant's wording. Failure phrases win over completion phrases.
var (
	reportFailedPhrases = []string{
		"report generation failed",
		"failed to generate",
		"error generating",
		"could not generate your report",
		"unable to generate",
	}
	completePhrases = []string{
		"assessment complete",
		"assessment is complete",
		"assessment has been completed",
		"report has been generated",
		"your report is ready",
	}
)

// ClassifyOutcome maps assistant text onto an Outcome. It is a pure function
// of its input.
func ClassifyOutcome(text string) Outcome {
	lower := strings.ToLower(text)
	for _, p := range reportFailedPhrases {
		if strings.Contains(lower, p) {
			return OutcomeReportFailed
		}
	}
	for _, p := range completePhrases {
		if strings.Contains(lower, p) {
			return OutcomeComplete
		}
	}
	return OutcomeNone
}
