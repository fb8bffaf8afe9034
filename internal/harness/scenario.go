package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/anchorage/internal/anchorid"
	"github.com/roach88/anchorage/internal/ar"
)

// Scenario defines one lifecycle scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also scopes the identifiers
	// the simulator issues, so renaming a scenario changes its trace.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Namespace prefixes every persisted key.
	Namespace string `yaml:"namespace,omitempty"`

	Loader LoaderSpec `yaml:"loader,omitempty"`

	// Seed records are appended before the first session.
	Seed []SeedRecord `yaml:"seed,omitempty"`

	// Raw key-value pairs are written after seeding, to corrupt records.
	// An empty value deletes the key.
	Raw map[string]string `yaml:"raw,omitempty"`

	Sessions   []SessionSpec `yaml:"sessions"`
	Assertions []Assertion   `yaml:"assertions"`
}

// LoaderSpec overrides load pass timing. Unset fields keep engine defaults.
type LoaderSpec struct {
	Delay           *time.Duration `yaml:"delay,omitempty"`
	PollInterval    *time.Duration `yaml:"poll_interval,omitempty"`
	TrackingTimeout *time.Duration `yaml:"tracking_timeout,omitempty"`
}

// Vec is an [x, y, z] triple.
type Vec [3]float64

func (v Vec) vec3() ar.Vec3 {
	return ar.Vec3{X: v[0], Y: v[1], Z: v[2]}
}

func vecOf(v ar.Vec3) Vec {
	return Vec{v.X, v.Y, v.Z}
}

// SeedRecord is a record present before the first session.
type SeedRecord struct {
	// ID is the canonical identifier. Empty derives one from the scenario
	// name and the seed position.
	ID string `yaml:"id,omitempty"`

	Fallback *Vec `yaml:"fallback,omitempty"`

	// Legacy writes the pre-canonical dual-field layout.
	Legacy bool `yaml:"legacy,omitempty"`

	// Known makes the platform able to resolve the identifier, at At (or
	// the fallback, or the origin).
	Known bool `yaml:"known,omitempty"`
	At    *Vec `yaml:"at,omitempty"`
}

// SessionSpec is one app launch.
type SessionSpec struct {
	// StableAfter is how many readiness checks report not-tracking before
	// tracking becomes stable. Negative never stabilizes.
	StableAfter int `yaml:"stable_after,omitempty"`

	// Planes lists the trackable planes present in this session.
	Planes []string `yaml:"planes,omitempty"`

	Viewer *Vec `yaml:"viewer,omitempty"`
	Drift  *Vec `yaml:"drift,omitempty"`

	// Forget lists record indices whose platform anchor is lost before this
	// session starts.
	Forget []uint64 `yaml:"forget,omitempty"`

	// FailLoads maps record indices to the status their resolve returns.
	FailLoads map[uint64]string `yaml:"fail_loads,omitempty"`

	Saves []SaveStep `yaml:"saves,omitempty"`

	// Load runs a load pass after the saves.
	Load bool `yaml:"load,omitempty"`

	// CancelAfter cancels the load pass when the Nth resolve is requested.
	CancelAfter int `yaml:"cancel_after,omitempty"`
}

// SaveStep is one placement request.
type SaveStep struct {
	Plane    string `yaml:"plane"`
	At       Vec    `yaml:"at"`
	Fallback *Vec   `yaml:"fallback,omitempty"`

	// Fail makes the subsystem answer this save with the given status.
	Fail string `yaml:"fail,omitempty"`
}

// Assertion validates the outcome of a run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Session selects the session (by position) for per-session assertions.
	Session int `yaml:"session,omitempty"`

	Count    *uint64  `yaml:"count,omitempty"`
	Results  []string `yaml:"results,omitempty"`
	Outcomes []string `yaml:"outcomes,omitempty"`
	Indices  []uint64 `yaml:"indices,omitempty"`
	Index    uint64   `yaml:"index,omitempty"`
	At       *Vec     `yaml:"at,omitempty"`
	Result   string   `yaml:"result,omitempty"`
}

// Assertion type constants.
const (
	AssertCount        = "count"
	AssertSaves        = "saves"
	AssertOutcomes     = "outcomes"
	AssertResolveOrder = "resolve_order"
	AssertPlacement    = "placement"
	AssertLoadResult   = "load_result"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Sessions) == 0 {
		return fmt.Errorf("sessions list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, rec := range s.Seed {
		if rec.ID == "" {
			continue
		}
		if _, err := anchorid.Decode(rec.ID); err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
	}

	for i, sess := range s.Sessions {
		for j, save := range sess.Saves {
			if save.Plane == "" {
				return fmt.Errorf("sessions[%d].saves[%d]: plane is required", i, j)
			}
		}
		if sess.CancelAfter < 0 {
			return fmt.Errorf("sessions[%d]: cancel_after must not be negative", i)
		}
		if sess.CancelAfter > 0 && !sess.Load {
			return fmt.Errorf("sessions[%d]: cancel_after needs load: true", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, len(s.Sessions)); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion, sessions int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Type != AssertCount && (a.Session < 0 || a.Session >= sessions) {
		return fmt.Errorf("assertions[%d]: session %d out of range (have %d)", index, a.Session, sessions)
	}

	switch a.Type {
	case AssertCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count requires 'count' field", index)
		}
	case AssertSaves:
		if len(a.Results) == 0 {
			return fmt.Errorf("assertions[%d]: saves requires 'results' field", index)
		}
	case AssertOutcomes:
		if a.Outcomes == nil {
			return fmt.Errorf("assertions[%d]: outcomes requires 'outcomes' field", index)
		}
	case AssertResolveOrder:
		if a.Indices == nil {
			return fmt.Errorf("assertions[%d]: resolve_order requires 'indices' field", index)
		}
	case AssertPlacement:
		if a.At == nil {
			return fmt.Errorf("assertions[%d]: placement requires 'at' field", index)
		}
	case AssertLoadResult:
		if a.Result == "" {
			return fmt.Errorf("assertions[%d]: load_result requires 'result' field", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}
	return nil
}
