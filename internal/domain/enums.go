package domain

// InputType tags how a quotation request entered the system.
type InputType string

const (
	InputText       InputType = "TEXT"
	InputImage      InputType = "IMAGE"
	InputGoogleLens InputType = "GOOGLE_LENS"
	InputTextBatch  InputType = "TEXT_BATCH"
	InputImageBatch InputType = "IMAGE_BATCH"
	InputFileBatch  InputType = "FILE_BATCH"
)

// Status is the lifecycle state of a QuoteRequest. A request reaches a
// terminal state (Done, Error, Cancelled, AwaitingReview) exactly once.
type Status string

const (
	StatusProcessing     Status = "PROCESSING"
	StatusDone           Status = "DONE"
	StatusError          Status = "ERROR"
	StatusCancelled      Status = "CANCELLED"
	StatusAwaitingReview Status = "AWAITING_REVIEW"
)

// Terminal reports whether s admits no further processing.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusError, StatusCancelled, StatusAwaitingReview:
		return true
	}
	return false
}

// ProcessingType routes a request to the vehicle (FIPE) or general
// (shopping) pipeline, as decided by the analysis stage.
type ProcessingType string

const (
	ProcessingFipe     ProcessingType = "FIPE"
	ProcessingShopping ProcessingType = "GOOGLE_SHOPPING"
)

// CheckpointTag marks a durable milestone of the quotation state machine.
// Tags advance strictly in declaration order within one run.
type CheckpointTag string

const (
	CheckpointInit            CheckpointTag = "INIT"
	CheckpointAnalysisStart   CheckpointTag = "AI_ANALYSIS_START"
	CheckpointAnalysisDone    CheckpointTag = "AI_ANALYSIS_DONE"
	CheckpointSearchStart     CheckpointTag = "SHOPPING_SEARCH_START"
	CheckpointSearchDone      CheckpointTag = "SHOPPING_SEARCH_DONE"
	CheckpointExtractionStart CheckpointTag = "PRICE_EXTRACTION_START"
	CheckpointFinalization    CheckpointTag = "FINALIZATION"
	CheckpointCompleted       CheckpointTag = "COMPLETED"
	CheckpointFailed          CheckpointTag = "FAILED"
)

var checkpointOrder = map[CheckpointTag]int{
	CheckpointInit:            0,
	CheckpointAnalysisStart:   1,
	CheckpointAnalysisDone:    2,
	CheckpointSearchStart:     3,
	CheckpointSearchDone:      4,
	CheckpointExtractionStart: 5,
	CheckpointFinalization:    6,
	CheckpointCompleted:       7,
	CheckpointFailed:          7,
}

// Before reports whether c precedes other in the linear checkpoint order.
func (c CheckpointTag) Before(other CheckpointTag) bool {
	return checkpointOrder[c] < checkpointOrder[other]
}

// ExtractionMethod records which mechanism produced an accepted price.
// REGEX replaces the legacy "LLM" label for the currency-pattern scanner.
type ExtractionMethod string

const (
	MethodJSONLD         ExtractionMethod = "JSONLD"
	MethodMeta           ExtractionMethod = "META"
	MethodDOM            ExtractionMethod = "DOM"
	MethodRegex          ExtractionMethod = "REGEX"
	MethodAPIFipe        ExtractionMethod = "API_FIPE"
	MethodGoogleShopping ExtractionMethod = "GOOGLE_SHOPPING"
)

// RejectionReason classifies why a candidate was discarded by the probe.
type RejectionReason string

const (
	RejectNoStoreLink     RejectionReason = "NO_STORE_LINK"
	RejectBlockedDomain   RejectionReason = "BLOCKED_DOMAIN"
	RejectForeignDomain   RejectionReason = "FOREIGN_DOMAIN"
	RejectListingURL      RejectionReason = "LISTING_URL"
	RejectDuplicateURL    RejectionReason = "DUPLICATE_URL"
	RejectPriceMismatch   RejectionReason = "PRICE_MISMATCH"
	RejectInvalidPrice    RejectionReason = "INVALID_PRICE"
	RejectScreenshotError RejectionReason = "SCREENSHOT_ERROR"
	RejectOther           RejectionReason = "OTHER"
)

// FileKind classifies stored blobs.
type FileKind string

const (
	FileInputImage        FileKind = "INPUT_IMAGE"
	FileScreenshot        FileKind = "SCREENSHOT"
	FileGeneratedDocument FileKind = "GENERATED_DOCUMENT"
)

// BatchStatus is the lifecycle state of a batch job.
type BatchStatus string

const (
	BatchProcessing         BatchStatus = "PROCESSING"
	BatchCompleted          BatchStatus = "COMPLETED"
	BatchPartiallyCompleted BatchStatus = "PARTIALLY_COMPLETED"
)

// ProgressStep is a well-known stage name reported to pollers.
type ProgressStep string

const (
	StepClaim         ProgressStep = "claim"
	StepAnalysisStart ProgressStep = "llm_start"
	StepAnalysisDone  ProgressStep = "llm_done"
	StepSearchStart   ProgressStep = "search_start"
	StepSearchDone    ProgressStep = "search_done"
	StepExtraction    ProgressStep = "extraction"
	StepStats         ProgressStep = "stats"
	StepFinalize      ProgressStep = "finalize"
	StepDone          ProgressStep = "done"
)

// ProgressPercent maps each step to its fixed percentage. Writers clamp
// to the stored value so the reported sequence is monotonic.
var ProgressPercent = map[ProgressStep]int{
	StepClaim:         5,
	StepAnalysisStart: 10,
	StepAnalysisDone:  30,
	StepSearchStart:   40,
	StepSearchDone:    50,
	StepExtraction:    60,
	StepStats:         80,
	StepFinalize:      95,
	StepDone:          100,
}

// IntegrationKind tags the external system behind an IntegrationLog row.
type IntegrationKind string

const (
	IntegrationLLM      IntegrationKind = "LLM"
	IntegrationShopping IntegrationKind = "GOOGLE_SHOPPING"
	IntegrationFipe     IntegrationKind = "FIPE"
)
