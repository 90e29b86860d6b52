package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// File is an immutable blob descriptor. Blobs are content-addressed:
// the SHA-256 of the bytes is recorded and participates in the storage
// path, so concurrent writers of identical content collide harmlessly.
type File struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Kind        FileKind  `json:"kind" db:"kind"`
	Mime        string    `json:"mime" db:"mime"`
	StoragePath string    `json:"storage_path" db:"storage_path"`
	SHA256      string    `json:"sha256" db:"sha256"`
	SizeBytes   int64     `json:"size_bytes" db:"size_bytes"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ProjectConfigVersion is the frozen parameter snapshot a QuoteRequest
// runs under.
type ProjectConfigVersion struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	ProjectID *uuid.UUID `json:"project_id,omitempty" db:"project_id"`
	Version   int        `json:"version" db:"version"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`

	NumberOfQuotes      int     `json:"number_of_quotes" db:"number_of_quotes"`
	MaxVariationPercent float64 `json:"max_variation_percent" db:"max_variation_percent"`
	PriceMismatchCheck  bool    `json:"enable_price_mismatch" db:"enable_price_mismatch"`

	SearchLocation string `json:"search_location" db:"search_location"`
	SearchLanguage string `json:"search_language" db:"search_language"`
	SearchCountry  string `json:"search_country" db:"search_country"`

	// v2 feature flags: persisted and plumbed, gate nothing yet.
	EnableSpecExtraction bool `json:"enable_spec_extraction" db:"enable_spec_extraction"`
	EnableSpecValidation bool `json:"enable_spec_validation" db:"enable_spec_validation"`
	EnableLinearMeter    bool `json:"enable_linear_meter" db:"enable_linear_meter"`
}

// MaxVariation returns the initial block tolerance as a fraction.
func (c *ProjectConfigVersion) MaxVariation() float64 {
	return c.MaxVariationPercent / 100.0
}

// VehiclePrice is one row of the FIPE price bank, deduplicated by
// (codigo_fipe, year_id) via UPSERT.
type VehiclePrice struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	CodigoFipe     string          `json:"codigo_fipe" db:"codigo_fipe"`
	YearID         string          `json:"year_id" db:"year_id"` // e.g. "2020-1"
	Brand          string          `json:"brand" db:"brand"`
	Model          string          `json:"model" db:"model"`
	Year           int             `json:"year" db:"year"`
	Fuel           string          `json:"fuel" db:"fuel"`
	Price          decimal.Decimal `json:"price" db:"price"`
	ReferenceMonth string          `json:"reference_month" db:"reference_month"`
	ScreenshotID   *uuid.UUID      `json:"screenshot_id,omitempty" db:"screenshot_id"`
	LastAPICall    time.Time       `json:"last_api_call" db:"last_api_call"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// Fresh reports whether the cached row is still within the vigency
// window and may be reused without a new API call.
func (v *VehiclePrice) Fresh(now time.Time, vigency time.Duration) bool {
	return now.Sub(v.UpdatedAt) <= vigency
}

// IntegrationLog is the append-only audit row of one external call.
type IntegrationLog struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	QuoteRequestID *uuid.UUID      `json:"quote_request_id,omitempty" db:"quote_request_id"`
	Kind           IntegrationKind `json:"kind" db:"kind"`
	Activity       string          `json:"activity" db:"activity"`
	URL            string          `json:"url" db:"url"` // sanitized, never carries API keys
	ProductTitle   string          `json:"product_title" db:"product_title"`
	StoreLink      string          `json:"store_link" db:"store_link"`
	InputTokens    int64           `json:"input_tokens" db:"input_tokens"`
	OutputTokens   int64           `json:"output_tokens" db:"output_tokens"`
	Calls          int             `json:"calls" db:"calls"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// FinancialTransaction is one immutable cost attribution row.
type FinancialTransaction struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	QuoteRequestID uuid.UUID       `json:"quote_request_id" db:"quote_request_id"`
	ClientID       *uuid.UUID      `json:"client_id,omitempty" db:"client_id"`
	ProjectID      *uuid.UUID      `json:"project_id,omitempty" db:"project_id"`
	Kind           IntegrationKind `json:"kind" db:"kind"`
	Units          int64           `json:"units" db:"units"` // tokens or calls
	UnitCostBRL    decimal.Decimal `json:"unit_cost_brl" db:"unit_cost_brl"`
	TotalCostBRL   decimal.Decimal `json:"total_cost_brl" db:"total_cost_brl"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// BatchJob groups child QuoteRequests dispatched together.
type BatchJob struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	ProjectID      *uuid.UUID  `json:"project_id,omitempty" db:"project_id"`
	Status         BatchStatus `json:"status" db:"status"`
	TotalCount     int         `json:"total_count" db:"total_count"`
	CompletedCount int         `json:"completed_count" db:"completed_count"`
	FailedCount    int         `json:"failed_count" db:"failed_count"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// BlockedDomain is one row of the blocked-sources configuration. The
// source label mapping is the primary form (aggregator results carry
// free-text store names), the raw domain the secondary.
type BlockedDomain struct {
	ID          uuid.UUID `json:"id" db:"id"`
	SourceLabel string    `json:"source_label" db:"source_label"`
	Domain      string    `json:"domain" db:"domain"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
