// Package reflexion runs the QA agent with bounded retry, parsing its test
// output and feeding a structured failure analysis back to the builder.
package reflexion

import (
	"regexp"
	"strings"
)

// Outcome is the parsed verdict of one QA run.
type Outcome struct {
	Passed      bool
	FailedTests []string
	ErrorLine   string
}

var (
	successRe      = regexp.MustCompile(`(?i)tests?\s+(passed|success|pass)\b`)
	failureRe      = regexp.MustCompile(`(?i)tests?\s+(failed|error|fail)\b`)
	failLinePrefix = regexp.MustCompile(`^\s*(FAIL|ERROR|✗|✖)[:\s]+(.*)`)
	errorCaptureRe = regexp.MustCompile(`(Error|FAIL|AssertionError)[: ]\s*(.*)`)
)

// Parse applies the tolerant test-output grammar. A failure marker anywhere
// overrides a success marker; output with no marker at all is treated as a
// failure, since an unreadable QA response proves nothing.
func Parse(output string) Outcome {
	outcome := Outcome{}

	failed := failureRe.MatchString(output)
	for _, line := range strings.Split(output, "\n") {
		if m := failLinePrefix.FindStringSubmatch(line); m != nil {
			failed = true
			if name := strings.TrimSpace(m[2]); name != "" {
				outcome.FailedTests = append(outcome.FailedTests, name)
			}
			// A failed-test line names the test, not the error. Keep the
			// error-line slot for the diagnostic that follows it.
			continue
		}
		if outcome.ErrorLine == "" {
			if m := errorCaptureRe.FindStringSubmatch(line); m != nil {
				outcome.ErrorLine = strings.TrimSpace(line)
			}
		}
	}
	if outcome.ErrorLine != "" {
		failed = true
	}

	if failed {
		return outcome
	}
	outcome.Passed = successRe.MatchString(output)
	return outcome
}
