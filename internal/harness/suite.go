package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioNotFoundError is returned when a scenario path doesn't exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario path %q does not exist", e.Path)
}

// SuiteResult summarizes a batch of scenario runs.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
	Results  []ScenarioOutcome `json:"results"`
}

// ScenarioOutcome is the result of one scenario within a suite.
type ScenarioOutcome struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Pass bool   `json:"pass"`
}

// ScenarioFailure represents a failed scenario.
type ScenarioFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// FindScenarios returns the scenario files under path: path itself if it
// is a file, or every .yaml/.yml file in the directory tree, sorted.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &ScenarioNotFoundError{Path: path}
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}

// RunSuite loads and runs every scenario in paths.
//
// For each scenario file:
// 1. Load and validate the scenario
// 2. Run it via harness.Run
// 3. Collect pass/fail with the reason
//
// A scenario that fails to load or run counts as failed; RunSuite itself
// only returns an error when a path cannot be searched.
func RunSuite(paths ...string) (*SuiteResult, error) {
	result := &SuiteResult{Results: []ScenarioOutcome{}}

	var files []string
	for _, p := range paths {
		found, err := FindScenarios(p)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}

	for _, file := range files {
		result.Total++

		scenario, err := LoadScenario(file)
		if err != nil {
			result.fail(file, "", fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		runResult, err := Run(scenario)
		if err != nil {
			result.fail(file, scenario.Name, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}

		if !runResult.Pass {
			result.fail(file, scenario.Name, fmt.Sprintf("scenario assertions failed: %s", strings.Join(runResult.Errors, "; ")))
			continue
		}

		result.Passed++
		result.Results = append(result.Results, ScenarioOutcome{Name: scenario.Name, Path: file, Pass: true})
	}

	return result, nil
}

func (r *SuiteResult) fail(path, name, msg string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{Path: path, Error: msg})
	r.Results = append(r.Results, ScenarioOutcome{Name: name, Path: path, Pass: false})
}
