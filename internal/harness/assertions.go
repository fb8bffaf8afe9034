package harness

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// placementTolerance absorbs float noise from drift and rotation math.
const placementTolerance = 1e-9

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Session  int
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	if e.Type == AssertCount {
		fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	} else {
		fmt.Fprintf(&buf, "Assertion failed: %s (session %d)\n", e.Type, e.Session)
	}
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	if a.Type == AssertCount {
		return assertCount(result, a)
	}

	if a.Session < 0 || a.Session >= len(result.Sessions) {
		return fmt.Errorf("session %d did not run", a.Session)
	}
	sess := result.Sessions[a.Session]

	switch a.Type {
	case AssertSaves:
		return assertSaves(sess, a)
	case AssertOutcomes:
		return withLoad(sess, a, assertOutcomes)
	case AssertResolveOrder:
		return withLoad(sess, a, assertResolveOrder)
	case AssertPlacement:
		return withLoad(sess, a, assertPlacement)
	case AssertLoadResult:
		return withLoad(sess, a, assertLoadResult)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func fail(a Assertion, expected, actual string) *AssertionError {
	return &AssertionError{Type: a.Type, Session: a.Session, Expected: expected, Actual: actual}
}

func withLoad(sess SessionResult, a Assertion, check func(*LoadSummary, Assertion) error) error {
	if sess.Load == nil {
		return fail(a, "a load pass", "session did not load")
	}
	return check(sess.Load, a)
}

func assertCount(result *Result, a Assertion) error {
	if result.Count != *a.Count {
		return fail(a, fmt.Sprintf("%d records", *a.Count), fmt.Sprintf("%d records", result.Count))
	}
	return nil
}

func assertSaves(sess SessionResult, a Assertion) error {
	got := make([]string, len(sess.Saves))
	for i, s := range sess.Saves {
		got[i] = s.Result
	}
	if !slices.Equal(got, a.Results) {
		return fail(a, fmt.Sprint(a.Results), fmt.Sprint(got))
	}
	return nil
}

func assertOutcomes(load *LoadSummary, a Assertion) error {
	got := make([]string, len(load.Outcomes))
	for i, o := range load.Outcomes {
		got[i] = o.Kind
	}
	if !slices.Equal(got, a.Outcomes) {
		return fail(a, fmt.Sprint(a.Outcomes), fmt.Sprint(got))
	}
	return nil
}

func assertResolveOrder(load *LoadSummary, a Assertion) error {
	if !slices.Equal(load.Requested, a.Indices) {
		return fail(a, fmt.Sprint(a.Indices), fmt.Sprint(load.Requested))
	}
	return nil
}

func assertPlacement(load *LoadSummary, a Assertion) error {
	for _, o := range load.Outcomes {
		if o.Index != a.Index {
			continue
		}
		if o.Kind == "skipped" {
			return fail(a, fmt.Sprintf("index %d placed at %v", a.Index, *a.At), "skipped")
		}
		for i := range o.At {
			if math.Abs(o.At[i]-a.At[i]) > placementTolerance {
				return fail(a, fmt.Sprintf("index %d placed at %v", a.Index, *a.At), fmt.Sprintf("placed at %v", o.At))
			}
		}
		return nil
	}
	return fail(a, fmt.Sprintf("index %d placed at %v", a.Index, *a.At), "no outcome for index")
}

func assertLoadResult(load *LoadSummary, a Assertion) error {
	if load.Result != a.Result {
		return fail(a, a.Result, load.Result)
	}
	return nil
}
