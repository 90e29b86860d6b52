package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrEmptyQuery is returned when the analysis produced no usable
// shopping query. The coordinator fails the request before touching the
// aggregator.
var ErrEmptyQuery = errors.New("análise não produziu consulta de busca")

// TokenLedger accounts for LLM usage of one analysis run, summed over
// its individual calls.
type TokenLedger struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
	Calls        int   `json:"calls"`
}

// Add merges a single call's usage into the ledger.
func (t *TokenLedger) Add(input, output int64) {
	t.InputTokens += input
	t.OutputTokens += output
	t.TotalTokens += input + output
	t.Calls++
}

// VehicleParams are the structured identification fields the analysis
// emits on the FIPE path. The fuel text is advisory: year selection
// always matches against the strings the FIPE API itself returns.
type VehicleParams struct {
	Brand       string `json:"marca" validate:"required"`
	Model       string `json:"modelo" validate:"required"`
	Year        int    `json:"ano" validate:"required,gte=1900,lte=2100"`
	Fuel        string `json:"combustivel"`
	VehicleType string `json:"tipo_veiculo"` // carros, motos, caminhoes
	CodigoFipe  string `json:"codigo_fipe"`
}

// Analysis is the narrow parsed form of the LLM payload: only the
// fields the pipeline reads. The full provider output stays attached as
// Raw for audit and is persisted verbatim in claude_payload_json.
type Analysis struct {
	ProcessingType ProcessingType `json:"tipo_processamento" validate:"required,oneof=FIPE GOOGLE_SHOPPING"`
	CanonicalName  string         `json:"nome_canonico" validate:"required"`
	Brand          string         `json:"marca"`
	Model          string         `json:"modelo"`
	PrimaryQuery   string         `json:"query_principal"`
	Alternatives   []string       `json:"queries_alternativas" validate:"max=3"`
	ExcludeTerms   []string       `json:"termos_excluir" validate:"max=10"`
	Specs          map[string]string `json:"especificacoes"`
	HasRelevant    bool           `json:"tem_specs_relevantes"`
	Vehicle        *VehicleParams `json:"veiculo,omitempty"`

	Ledger TokenLedger     `json:"token_ledger"`
	Raw    json.RawMessage `json:"-"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseAnalysis decodes and validates the stored analysis payload.
// Used both on the fresh LLM response and when resuming from
// claude_payload_json; the parsed form is cached on the in-memory
// request, never reparsed per step.
func ParseAnalysis(raw []byte) (*Analysis, error) {
	var a Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decodificando payload de análise: %w", err)
	}
	a.Raw = json.RawMessage(raw)
	if err := validate.Struct(&a); err != nil {
		return nil, fmt.Errorf("payload de análise inválido: %w", err)
	}
	if a.ProcessingType == ProcessingFipe {
		if a.Vehicle == nil {
			return nil, errors.New("análise FIPE sem dados do veículo")
		}
		if err := validate.Struct(a.Vehicle); err != nil {
			return nil, fmt.Errorf("dados do veículo inválidos: %w", err)
		}
	}
	return &a, nil
}

// ShoppingQuery returns the primary query, enforcing the query-quality
// contract for the shopping path.
func (a *Analysis) ShoppingQuery() (string, error) {
	q := strings.TrimSpace(a.PrimaryQuery)
	if q == "" {
		return "", ErrEmptyQuery
	}
	return q, nil
}

// FallbackQuery derives a shopping query for a failed FIPE run: the
// analysis-provided primary query when present, else brand+model.
func (a *Analysis) FallbackQuery() (string, bool) {
	if q := strings.TrimSpace(a.PrimaryQuery); q != "" {
		return q, true
	}
	if a.Vehicle != nil {
		q := strings.TrimSpace(a.Vehicle.Brand + " " + a.Vehicle.Model)
		if q != "" {
			return q, true
		}
	}
	return "", false
}
