package pipeline

import (
	"runtime"

	"invoicelayout/internal/boundary"
	"invoicelayout/internal/fields"
	"invoicelayout/internal/invoice"
	"invoicelayout/internal/layout"
	"invoicelayout/internal/lineitems"
	"invoicelayout/internal/ocr"
)

// Config is the full set of extraction tunables. It is passed by value to
// New, so pipelines with different configurations can run side by side.
type Config struct {
	Layout    layout.Config           `toml:"layout"`
	LineItems lineitems.Config        `toml:"line_items"`
	Fields    fields.Config           `toml:"fields"`
	Validator invoice.ValidatorConfig `toml:"validator"`
	Boundary  boundary.Config         `toml:"boundary"`
	Routing   ocr.RoutingConfig       `toml:"routing"`

	PageWorkers int  `toml:"page_workers"` // pages analyzed concurrently per document
	Enrich      bool `toml:"enrich"`       // run the enricher on REVIEW invoices
}

func DefaultConfig() Config {
	return Config{
		Layout:      layout.DefaultConfig(),
		LineItems:   lineitems.DefaultConfig(),
		Fields:      fields.DefaultConfig(),
		Validator:   invoice.DefaultValidatorConfig(),
		Boundary:    boundary.DefaultConfig(),
		Routing:     ocr.DefaultRoutingConfig(),
		PageWorkers: 4,
		Enrich:      true,
	}
}

func (c Config) pageWorkers() int {
	if c.PageWorkers > 0 {
		return c.PageWorkers
	}
	return runtime.NumCPU()
}
