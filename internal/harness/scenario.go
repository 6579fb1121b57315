package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/presfeed/internal/compositor"
	"github.com/roach88/presfeed/internal/presentation"
	"github.com/roach88/presfeed/internal/protocol"
)

// Scenario describes one observation run: a simulated compositor, the
// surfaces a client creates on it, the requests the client makes, and the
// outcomes it should observe.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Session is an optional fixed session ID used when recording.
	Session string `yaml:"session,omitempty"`

	Compositor CompositorConfig `yaml:"compositor,omitempty"`
	Surfaces   []SurfaceConfig  `yaml:"surfaces"`
	Steps      []Step           `yaml:"steps"`
	Expect     []Expectation    `yaml:"expect,omitempty"`

	// ExpectError is the lower-case violation code the run must end with,
	// e.g. "capability_missing". Empty means the run must not fail.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// CompositorConfig configures the simulated compositor.
type CompositorConfig struct {
	// RefreshNsec defaults to 60 Hz when nil. 0 means unknown refresh.
	RefreshNsec *uint32   `yaml:"refresh_nsec,omitempty"`
	BaseTime    *BaseTime `yaml:"base_time,omitempty"`
	BaseSeq     uint64    `yaml:"base_seq,omitempty"`

	Outputs []OutputConfig `yaml:"outputs,omitempty"`

	// Globals replaces the advertised globals when non-empty.
	Globals []GlobalConfig `yaml:"globals,omitempty"`

	NullSyncOutput    bool `yaml:"null_sync_output,omitempty"`
	DuplicateTerminal bool `yaml:"duplicate_terminal,omitempty"`

	// FailDispatchAfter makes every dispatch after the first n fail.
	FailDispatchAfter *int `yaml:"fail_dispatch_after,omitempty"`
}

// BaseTime is the presentation time of the first repaint.
type BaseTime struct {
	Sec  uint64 `yaml:"sec"`
	Nsec uint32 `yaml:"nsec"`
}

// OutputConfig is one display output.
type OutputConfig struct {
	Name  string   `yaml:"name"`
	Flags []string `yaml:"flags,omitempty"`
}

// GlobalConfig is one advertised registry global.
type GlobalConfig struct {
	Interface string `yaml:"interface"`
	Version   uint32 `yaml:"version"`
}

// SurfaceConfig is one client surface and the outputs it is shown on.
type SurfaceConfig struct {
	Name    string   `yaml:"name"`
	Width   int32    `yaml:"width"`
	Height  int32    `yaml:"height"`
	Outputs []string `yaml:"outputs,omitempty"`
}

// Step is one client action. Exactly one of Commit, Wait, WaitAll and
// Destroy is set.
type Step struct {
	// Commit names the surface to commit. Feedback, if set, names a new
	// feedback request created before the commit. Attach defaults to true;
	// false commits with no buffer.
	Commit   string `yaml:"commit,omitempty"`
	Feedback string `yaml:"feedback,omitempty"`
	Attach   *bool  `yaml:"attach,omitempty"`

	Wait    string   `yaml:"wait,omitempty"`
	WaitAll []string `yaml:"wait_all,omitempty"`
	Destroy string   `yaml:"destroy,omitempty"`
}

// Step kinds.
const (
	StepCommit  = "commit"
	StepWait    = "wait"
	StepWaitAll = "wait_all"
	StepDestroy = "destroy"
)

// Kind returns the step kind, or "" if not exactly one kind is set.
func (s Step) Kind() string {
	var kinds []string
	if s.Commit != "" {
		kinds = append(kinds, StepCommit)
	}
	if s.Wait != "" {
		kinds = append(kinds, StepWait)
	}
	if len(s.WaitAll) > 0 {
		kinds = append(kinds, StepWaitAll)
	}
	if s.Destroy != "" {
		kinds = append(kinds, StepDestroy)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Expectation is the observed final state of one feedback request.
// Unset optional fields are not checked.
type Expectation struct {
	Feedback    string  `yaml:"feedback"`
	Result      string  `yaml:"result"`
	Flags       string  `yaml:"flags,omitempty"`
	Seq         *uint64 `yaml:"seq,omitempty"`
	Timestamp   string  `yaml:"timestamp,omitempty"`
	RefreshNsec *uint32 `yaml:"refresh_nsec,omitempty"`
	SyncOutput  *string `yaml:"sync_output,omitempty"`
}

// LoadScenario reads, validates and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(path, data)
}

// ParseScenario validates data against the scenario schema, decodes it
// with unknown fields rejected, and checks cross references.
func ParseScenario(filename string, data []byte) (*Scenario, error) {
	if err := ValidateSchema(filename, data); err != nil {
		return nil, err
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", filename, err)
	}
	return &scenario, nil
}

// validateScenario checks what the schema cannot: names must be unique and
// every reference must resolve, in step order.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Surfaces) == 0 {
		return fmt.Errorf("surfaces list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	outputs := make(map[string]bool)
	for i, o := range s.Compositor.Outputs {
		if outputs[o.Name] {
			return fmt.Errorf("compositor.outputs[%d]: duplicate output %q", i, o.Name)
		}
		outputs[o.Name] = true
		if _, err := presentation.ParseKind(o.Flags); err != nil {
			return fmt.Errorf("compositor.outputs[%d]: %w", i, err)
		}
	}

	surfaces := make(map[string]bool)
	for i, surf := range s.Surfaces {
		if surfaces[surf.Name] {
			return fmt.Errorf("surfaces[%d]: duplicate surface %q", i, surf.Name)
		}
		surfaces[surf.Name] = true
		if surf.Width <= 0 || surf.Height <= 0 {
			return fmt.Errorf("surfaces[%d]: size must be positive", i)
		}
		for _, o := range surf.Outputs {
			if !outputs[o] {
				return fmt.Errorf("surfaces[%d]: unknown output %q", i, o)
			}
		}
	}

	feedback := make(map[string]bool)
	known := func(i int, name string) error {
		if !feedback[name] {
			return fmt.Errorf("steps[%d]: feedback %q is not created by an earlier step", i, name)
		}
		return nil
	}
	for i, step := range s.Steps {
		switch step.Kind() {
		case StepCommit:
			if !surfaces[step.Commit] {
				return fmt.Errorf("steps[%d]: unknown surface %q", i, step.Commit)
			}
			if step.Feedback != "" {
				if feedback[step.Feedback] {
					return fmt.Errorf("steps[%d]: duplicate feedback %q", i, step.Feedback)
				}
				feedback[step.Feedback] = true
			}
		case StepWait:
			if err := known(i, step.Wait); err != nil {
				return err
			}
		case StepWaitAll:
			for _, name := range step.WaitAll {
				if err := known(i, name); err != nil {
					return err
				}
			}
		case StepDestroy:
			if err := known(i, step.Destroy); err != nil {
				return err
			}
		default:
			return fmt.Errorf("steps[%d]: exactly one of commit, wait, wait_all, destroy is required", i)
		}
		if step.Kind() != StepCommit && (step.Feedback != "" || step.Attach != nil) {
			return fmt.Errorf("steps[%d]: feedback and attach only apply to commit", i)
		}
	}

	expected := make(map[string]bool)
	for i, e := range s.Expect {
		if !feedback[e.Feedback] {
			return fmt.Errorf("expect[%d]: unknown feedback %q", i, e.Feedback)
		}
		if expected[e.Feedback] {
			return fmt.Errorf("expect[%d]: duplicate expectation for %q", i, e.Feedback)
		}
		expected[e.Feedback] = true
		if _, err := presentation.ParseResult(e.Result); err != nil {
			return fmt.Errorf("expect[%d]: %w", i, err)
		}
		if e.Flags != "" {
			if _, err := presentation.ParseSymbols(e.Flags); err != nil {
				return fmt.Errorf("expect[%d]: %w", i, err)
			}
		}
		if e.SyncOutput != nil && *e.SyncOutput != "" && !outputs[*e.SyncOutput] {
			return fmt.Errorf("expect[%d]: unknown output %q", i, *e.SyncOutput)
		}
	}

	if s.ExpectError != "" && expectedCode(s.ExpectError) == "" {
		return fmt.Errorf("expect_error: unknown code %q", s.ExpectError)
	}
	return nil
}

// expectedCode maps a lower-case scenario error name to its violation code.
func expectedCode(name string) presentation.ViolationCode {
	code := presentation.ViolationCode(strings.ToUpper(name))
	for _, known := range presentation.ViolationCodes() {
		if code == known {
			return code
		}
	}
	return ""
}

// options translates the config into compositor options.
func (c CompositorConfig) options() []compositor.Option {
	var opts []compositor.Option
	if c.RefreshNsec != nil {
		opts = append(opts, compositor.WithRefresh(*c.RefreshNsec))
	}
	if c.BaseTime != nil {
		opts = append(opts, compositor.WithBaseTime(c.BaseTime.Sec, c.BaseTime.Nsec))
	}
	if c.BaseSeq != 0 {
		opts = append(opts, compositor.WithBaseSeq(c.BaseSeq))
	}
	if len(c.Globals) > 0 {
		globals := make([]protocol.Global, len(c.Globals))
		for i, g := range c.Globals {
			globals[i] = protocol.Global{Interface: g.Interface, Version: g.Version}
		}
		opts = append(opts, compositor.WithGlobals(globals...))
	}
	if c.NullSyncOutput {
		opts = append(opts, compositor.WithNullSyncOutput())
	}
	if c.DuplicateTerminal {
		opts = append(opts, compositor.WithDuplicateTerminal())
	}
	if c.FailDispatchAfter != nil {
		opts = append(opts, compositor.WithDispatchFailure(*c.FailDispatchAfter, nil))
	}
	return opts
}
