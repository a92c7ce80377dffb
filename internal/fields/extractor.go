package fields

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"invoicelayout/internal/layout"
	"invoicelayout/internal/logger"
	"invoicelayout/pkg/models"
)

// Input is what the extractor sees of one virtual invoice: the analyzed
// pages of its range and the sum of its parsed lines.
type Input struct {
	Pages    []layout.PageLayout
	LinesSum float64
	HasLines bool
}

// Result is the header with the bookkeeping of the retry loop.
type Result struct {
	Header   models.InvoiceHeader
	Attempts int
	Notes    []string
}

// Extractor reads the header fields of a virtual invoice.
type Extractor struct {
	config Config
	log    zerolog.Logger
}

func NewExtractor(config Config) *Extractor {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if len(config.Strategies) == 0 {
		config.Strategies = []Strategy{StrategyNone}
	}
	return &Extractor{
		config: config,
		log:    logger.WithComponent("fields"),
	}
}

// Extract runs the strategies in order until both critical fields reach the
// target confidence or the attempt budget is spent. Each critical field
// keeps the best value seen across attempts.
func (e *Extractor) Extract(in Input) Result {
	var res Result
	if len(in.Pages) == 0 {
		return res
	}
	first := in.Pages[0]
	res.Header.Segment = models.SegmentRef{Page: first.Page.Number, Type: models.SegmentHeader}
	e.headerFields(first, &res.Header)

	for _, strategy := range e.strategies() {
		res.Attempts++
		attempt := e.ExtractWith(in, strategy)

		improved := false
		if attempt.InvoiceNumberConfidence > res.Header.InvoiceNumberConfidence {
			res.Header.InvoiceNumber = attempt.InvoiceNumber
			res.Header.InvoiceNumberConfidence = attempt.InvoiceNumberConfidence
			res.Header.InvoiceNumberTrace = attempt.InvoiceNumberTrace
			improved = true
		}
		if attempt.TotalConfidence > res.Header.TotalConfidence {
			res.Header.TotalAmount = attempt.TotalAmount
			res.Header.TotalConfidence = attempt.TotalConfidence
			res.Header.TotalTrace = attempt.TotalTrace
			res.Header.TotalCandidates = attempt.TotalCandidates
			improved = true
		}
		if res.Attempts > 1 {
			res.Notes = append(res.Notes, fmt.Sprintf("retry %d (%s): invoice_no %.2f, total %.2f, improved=%t",
				res.Attempts, strategy, attempt.InvoiceNumberConfidence, attempt.TotalConfidence, improved))
		}

		e.log.Debug().
			Str("strategy", string(strategy)).
			Int("attempt", res.Attempts).
			Float64("invoice_no_conf", attempt.InvoiceNumberConfidence).
			Float64("total_conf", attempt.TotalConfidence).
			Msg("Field extraction attempt")

		if e.reachedTarget(res.Header) {
			break
		}
	}
	return res
}

func (e *Extractor) strategies() []Strategy {
	n := min(e.config.MaxAttempts, len(e.config.Strategies))
	return e.config.Strategies[:n]
}

func (e *Extractor) reachedTarget(h models.InvoiceHeader) bool {
	return math.Min(h.InvoiceNumberConfidence, h.TotalConfidence) >= e.config.TargetConfidence
}

// ExtractWith runs a single strategy and returns only the critical fields.
func (e *Extractor) ExtractWith(in Input, strategy Strategy) models.InvoiceHeader {
	var h models.InvoiceHeader
	if len(in.Pages) == 0 {
		return h
	}

	if numbers := e.InvoiceNumberCandidates(in.Pages, strategy); len(numbers) > 0 {
		best := numbers[0]
		trace, err := models.NewTraceability(models.FieldInvoiceNumber, best.Value, best.Score, best.Row, []models.Token{best.Token})
		if err == nil {
			h.InvoiceNumber = best.Value
			h.InvoiceNumberConfidence = best.Score
			h.InvoiceNumberTrace = &trace
		} else {
			e.log.Warn().Err(err).Msg("Dropping invoice number without evidence")
		}
	}

	totals := e.TotalCandidates(in.Pages, in.LinesSum, in.HasLines, strategy)
	if best, ok := e.SelectTotal(totals); ok {
		trace, err := models.NewTraceability(models.FieldTotal, fmt.Sprintf("%.2f", best.Value), best.Score, best.Row, best.Tokens)
		if err == nil {
			value := best.Value
			h.TotalAmount = &value
			h.TotalConfidence = best.Score
			h.TotalTrace = &trace
		} else {
			e.log.Warn().Err(err).Msg("Dropping total without evidence")
		}
		for _, c := range totals {
			h.TotalCandidates = append(h.TotalCandidates, c.Summary())
		}
	}
	return h
}
