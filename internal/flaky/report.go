package flaky

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// TestResult is the failure tally of one test across all runs.
type TestResult struct {
	Name     string  `yaml:"name"`
	Failures int     `yaml:"failures"`
	Rate     float64 `yaml:"failure_rate"`
}

// Report summarises a detection session.
type Report struct {
	Command      string       `yaml:"command"`
	StartedAt    time.Time    `yaml:"started_at"`
	FinishedAt   time.Time    `yaml:"finished_at"`
	Runs         int          `yaml:"runs"`
	CleanRuns    int          `yaml:"clean_runs"`
	Unattributed int          `yaml:"unattributed_failures,omitempty"`
	Interrupted  bool         `yaml:"interrupted,omitempty"`
	Flaky        []TestResult `yaml:"flaky"`
	Broken       []TestResult `yaml:"broken"`
}

// HasFlaky reports whether any test failed intermittently.
func (r *Report) HasFlaky() bool {
	return len(r.Flaky) > 0
}

// classify splits tests into those failing in every run and those failing in some.
func (r *Report) classify(counts map[string]int) {
	r.Flaky = []TestResult{}
	r.Broken = []TestResult{}
	if r.Runs == 0 {
		return
	}
	for name, n := range counts {
		res := TestResult{Name: name, Failures: n, Rate: float64(n) / float64(r.Runs)}
		if n >= r.Runs {
			r.Broken = append(r.Broken, res)
		} else {
			r.Flaky = append(r.Flaky, res)
		}
	}
	byRate := func(list []TestResult) func(i, j int) bool {
		return func(i, j int) bool {
			if list[i].Failures != list[j].Failures {
				return list[i].Failures > list[j].Failures
			}
			return list[i].Name < list[j].Name
		}
	}
	sort.Slice(r.Flaky, byRate(r.Flaky))
	sort.Slice(r.Broken, byRate(r.Broken))
}

// WriteFile stores the report as YAML at path.
func (r *Report) WriteFile(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
