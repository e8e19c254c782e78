package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// AcceptancePolicy decides whether a critique accepts the draft.
type AcceptancePolicy string

const (
	// PolicyKeywordMatch reads a free-text critique for an approval keyword.
	PolicyKeywordMatch AcceptancePolicy = "keyword-match"
	// PolicyExplicitFlag expects {"approved": bool, "feedback": string}.
	PolicyExplicitFlag AcceptancePolicy = "explicit-flag"
)

// ParsePolicy converts a configuration value to an AcceptancePolicy.
func ParsePolicy(s string) (AcceptancePolicy, error) {
	switch p := AcceptancePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyKeywordMatch, PolicyExplicitFlag:
		return p, nil
	case "":
		return PolicyKeywordMatch, nil
	default:
		return "", fmt.Errorf("unknown acceptance policy %q", s)
	}
}

// Structured reports whether the critic should be asked for JSON.
func (p AcceptancePolicy) Structured() bool { return p == PolicyExplicitFlag }

// Verdict is the judged outcome of one critique. Feedback is what the
// writer sees on the next revision.
type Verdict struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback"`
}

// Judge applies the policy to a critic response.
func (p AcceptancePolicy) Judge(critique string) Verdict {
	if p == PolicyExplicitFlag {
		return judgeExplicit(critique)
	}
	return judgeKeywords(critique)
}

var (
	approvalKeywords  = []string{"APPROVED", "APPROVE", "ACCEPTED", "ACCEPT", "LGTM"}
	rejectionKeywords = []string{"FEEDBACK:", "REJECTED", "REJECT"}
)

func judgeKeywords(critique string) Verdict {
	text := strings.TrimSpace(critique)
	if text == "" {
		return Verdict{Approved: true}
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if l := normalizeLine(line); l != "" {
			lines = append(lines, l)
		}
	}

	if len(lines) == 0 {
		return Verdict{Feedback: text}
	}

	// The first line carries the verdict when it has one.
	switch {
	case startsWithKeyword(lines[0], approvalKeywords):
		return Verdict{Approved: true, Feedback: text}
	case startsWithKeyword(lines[0], rejectionKeywords):
		return Verdict{Feedback: text}
	}

	for _, l := range lines {
		if startsWithKeyword(l, rejectionKeywords) {
			return Verdict{Feedback: text}
		}
	}
	if startsWithKeyword(lines[len(lines)-1], approvalKeywords) {
		return Verdict{Approved: true, Feedback: text}
	}
	return Verdict{Feedback: text}
}

// normalizeLine strips markdown decoration and upper-cases the line.
func normalizeLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "#>*_-` ")
	return strings.ToUpper(strings.TrimSpace(line))
}

func startsWithKeyword(line string, keywords []string) bool {
	for _, kw := range keywords {
		if !strings.HasPrefix(line, kw) {
			continue
		}
		rest := line[len(kw):]
		if rest == "" || strings.HasSuffix(kw, ":") {
			return true
		}
		r := []rune(rest)[0]
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

type explicitVerdict struct {
	Approved *bool  `json:"approved"`
	Feedback string `json:"feedback"`
}

func judgeExplicit(critique string) Verdict {
	text := strings.TrimSpace(critique)

	body := stripCodeFence(text)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var v explicitVerdict
	if err := json.Unmarshal([]byte(body), &v); err != nil || v.Approved == nil {
		return Verdict{Feedback: text}
	}

	feedback := strings.TrimSpace(v.Feedback)
	if feedback == "" && !*v.Approved {
		feedback = text
	}
	return Verdict{Approved: *v.Approved, Feedback: feedback}
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
