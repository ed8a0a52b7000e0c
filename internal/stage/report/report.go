// Package report holds the independent report generators. Each one writes a
// single artifact into the task's report directory; failures are isolated
// per generator and never abort the run.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

func ok(path string) analysis.StageResult {
	return analysis.StageResult{Success: true, Path: path}
}

func fail(err error) analysis.StageResult {
	return analysis.StageResult{Success: false, Error: err.Error()}
}

func writeJSON(dir, name string, v any) (string, error) {
	path := filepath.Join(dir, name)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}
