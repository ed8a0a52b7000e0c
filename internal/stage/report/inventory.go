package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

// Inventory writes crawl-inventory.csv, one row per crawled page.
type Inventory struct{}

func (Inventory) Name() string { return "report_inventory" }

func (Inventory) Generate(_ context.Context, dir string, results *analysis.ResultSet) analysis.StageResult {
	path := filepath.Join(dir, "crawl-inventory.csv")
	f, err := os.Create(path)
	if err != nil {
		return fail(fmt.Errorf("create inventory: %w", err))
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"url", "status_code", "title", "word_count", "rendered"}); err != nil {
		return fail(fmt.Errorf("write inventory header: %w", err))
	}
	if results.Audit != nil {
		for _, p := range results.Audit.Pages {
			row := []string{
				p.URL,
				strconv.Itoa(p.StatusCode),
				p.Title,
				strconv.Itoa(p.WordCount),
				strconv.FormatBool(p.Rendered),
			}
			if err := w.Write(row); err != nil {
				return fail(fmt.Errorf("write inventory row: %w", err))
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fail(fmt.Errorf("flush inventory: %w", err))
	}
	return ok(path)
}
