package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// MarshalTrace renders a scenario trace in the golden-file format: a header
// line with the scenario name, then one line per event.
func MarshalTrace(scenarioName string, result *Result) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", scenarioName)
	for _, ev := range result.Trace {
		buf.WriteString(ev.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// RunWithGolden executes a scenario and compares the trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares result's trace against the golden file for
// scenarioName without re-running anything.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, MarshalTrace(scenarioName, result))
}
