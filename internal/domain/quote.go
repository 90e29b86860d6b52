package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// QuoteRequest is the unit of work: one item to be priced against N
// market sources. It is created by intake in PROCESSING and mutated only
// by the worker currently holding its claim.
type QuoteRequest struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	InputText   string         `json:"input_text" db:"input_text"`
	InputType   InputType      `json:"input_type" db:"input_type"`
	InputImages pq.StringArray `json:"input_images,omitempty" db:"input_images"`
	ProjectID   *uuid.UUID     `json:"project_id,omitempty" db:"project_id"`
	ClientID    *uuid.UUID     `json:"client_id,omitempty" db:"client_id"`

	// ConfigVersionID references the frozen parameter snapshot this
	// request runs under; config changes never affect in-flight work.
	ConfigVersionID uuid.UUID  `json:"config_version_id" db:"config_version_id"`
	BatchJobID      *uuid.UUID `json:"batch_job_id,omitempty" db:"batch_job_id"`

	// Re-quote chain, collapsed to the root: every descendant points at
	// the original request, never at its immediate parent.
	OriginalQuoteID *uuid.UUID `json:"original_quote_id,omitempty" db:"original_quote_id"`
	AttemptNumber   int        `json:"attempt_number" db:"attempt_number"`

	CodigoItem  *string `json:"codigo_item,omitempty" db:"codigo_item"`
	Local       *string `json:"local,omitempty" db:"local"`
	Pesquisador *string `json:"pesquisador,omitempty" db:"pesquisador"`

	Status       Status  `json:"status" db:"status"`
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	ProgressStep    ProgressStep `json:"progress_step" db:"progress_step"`
	ProgressPercent int          `json:"progress_percent" db:"progress_percent"`
	ProgressDetail  string       `json:"progress_detail" db:"progress_detail"`

	// Durable artifacts of paid external calls; their presence drives
	// resume skipping.
	AnalysisJSON []byte `json:"-" db:"claude_payload_json"`
	ShoppingJSON []byte `json:"-" db:"google_shopping_response_json"`

	Checkpoint        CheckpointTag `json:"checkpoint" db:"checkpoint"`
	CheckpointPayload []byte        `json:"-" db:"checkpoint_payload"`

	WorkerID      *string    `json:"worker_id,omitempty" db:"worker_id"`
	StartedAt     *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty" db:"last_heartbeat"`

	MeanPrice     *decimal.Decimal `json:"mean_price,omitempty" db:"mean_price"`
	MinPrice      *decimal.Decimal `json:"min_price,omitempty" db:"min_price"`
	MaxPrice      *decimal.Decimal `json:"max_price,omitempty" db:"max_price"`
	SpreadPercent *decimal.Decimal `json:"spread_percent,omitempty" db:"spread_percent"`
}

// QuoteSource is one accepted price observation with its evidence.
// Sources are created during PROCESSING and never mutated afterwards,
// except for the late pass that flips is_accepted when the final block
// is reassembled.
type QuoteSource struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	QuoteRequestID uuid.UUID        `json:"quote_request_id" db:"quote_request_id"`
	URL            string           `json:"url" db:"url"`
	Domain         string           `json:"domain" db:"domain"`
	PageTitle      string           `json:"page_title" db:"page_title"`
	Price          decimal.Decimal  `json:"price" db:"price"`
	Currency       string           `json:"currency" db:"currency"`
	Method         ExtractionMethod `json:"extraction_method" db:"extraction_method"`
	ScreenshotID   *uuid.UUID       `json:"screenshot_id,omitempty" db:"screenshot_id"`
	CapturedAt     time.Time        `json:"captured_at" db:"captured_at"`
	IsOutlier      bool             `json:"is_outlier" db:"is_outlier"` // reserved, always false
	IsAccepted     bool             `json:"is_accepted" db:"is_accepted"`
	FailureReason  *string          `json:"failure_reason,omitempty" db:"failure_reason"`
}

// QuoteSourceFailure records every discarded candidate for audit.
type QuoteSourceFailure struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	QuoteRequestID uuid.UUID       `json:"quote_request_id" db:"quote_request_id"`
	URL            string          `json:"url" db:"url"`
	Domain         string          `json:"domain" db:"domain"`
	ProductTitle   string          `json:"product_title" db:"product_title"`
	GooglePrice    decimal.Decimal `json:"google_price" db:"google_price"`
	Reason         RejectionReason `json:"reason" db:"reason"`
	Message        string          `json:"message" db:"message"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Aggregates holds the statistics derived from the accepted source set.
type Aggregates struct {
	Mean          decimal.Decimal `json:"mean"`
	Min           decimal.Decimal `json:"min"`
	Max           decimal.Decimal `json:"max"`
	SpreadPercent decimal.Decimal `json:"spread_percent"`
}

var oneHundred = decimal.NewFromInt(100)

// ComputeAggregates derives mean/min/max/spread from accepted prices.
// Spread is (max/min - 1) * 100. Returns ok=false on an empty set.
func ComputeAggregates(prices []decimal.Decimal) (Aggregates, bool) {
	if len(prices) == 0 {
		return Aggregates{}, false
	}
	min, max := prices[0], prices[0]
	sum := decimal.Zero
	for _, p := range prices {
		if p.LessThan(min) {
			min = p
		}
		if p.GreaterThan(max) {
			max = p
		}
		sum = sum.Add(p)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(prices)))).Round(2)
	spread := decimal.Zero
	if min.IsPositive() {
		spread = max.Div(min).Sub(decimal.NewFromInt(1)).Mul(oneHundred).Round(2)
	}
	return Aggregates{Mean: mean, Min: min, Max: max, SpreadPercent: spread}, true
}

// TerminalStatus applies the terminal-status rule: K accepted sources
// against the configured target N.
func TerminalStatus(accepted, required int) Status {
	switch {
	case accepted >= required:
		return StatusDone
	case accepted > 0:
		return StatusAwaitingReview
	default:
		return StatusError
	}
}

// SearchStats is the running block-search bookkeeping persisted in the
// checkpoint payload during PRICE_EXTRACTION_START.
type SearchStats struct {
	CandidatesTotal    int     `json:"candidates_total"`
	CandidatesProbed   int     `json:"candidates_probed"`
	Validated          int     `json:"validated"`
	Failed             int     `json:"failed"`
	ToleranceIncreases int     `json:"tolerance_increases"`
	FinalVariation     float64 `json:"final_variation"`
	BlocksTried        int     `json:"blocks_tried"`
	UsedReserve        bool    `json:"used_reserve"`
}

// RequoteRoot resolves the root of a re-quote chain: the request's
// original if set, else the request itself. Chains are one hop deep.
func RequoteRoot(q *QuoteRequest) uuid.UUID {
	if q.OriginalQuoteID != nil {
		return *q.OriginalQuoteID
	}
	return q.ID
}
