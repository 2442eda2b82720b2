package domain

// OutcomeKind discriminates the classification result union. The routing
// step in the orchestrator switches exhaustively over these values.
type OutcomeKind int

const (
	// OutcomeClassified is a terminal success: category, item name and
	// confidence are known. Cached and logged.
	OutcomeClassified OutcomeKind = iota

	// OutcomeNeedsClarification is non-terminal: the provider needs a
	// yes/no answer before it can finalize. Never persisted.
	OutcomeNeedsClarification

	// OutcomeInvalidScan means the image is not a disposable physical item
	// (or is a person). Short-circuits before any caching or accounting.
	OutcomeInvalidScan

	// OutcomeCityExcluded means the item is recognizable but outside
	// municipal collection. Logged but never cached.
	OutcomeCityExcluded
)

// String returns the outcome kind name for logging.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeClassified:
		return "classified"
	case OutcomeNeedsClarification:
		return "needs_clarification"
	case OutcomeInvalidScan:
		return "invalid_scan"
	case OutcomeCityExcluded:
		return "city_excluded"
	default:
		return "unknown"
	}
}

// Outcome is the structured result returned by the external classifier,
// already normalized into the tagged union the orchestrator routes on.
// Only the fields relevant to the Kind are populated.
type Outcome struct {
	Kind OutcomeKind

	// Classified / CityExcluded fields.
	Category     Category
	ItemName     string
	Instructions string
	Confidence   float64
	ItemCount    int

	// NeedsClarification fields. BestGuessCategory lets the orchestrator
	// forcibly finalize when a resubmission still comes back unclear.
	ClarificationQuestion string
	BestGuessCategory     Category
	BestGuessItemName     string

	// InvalidScan fields.
	RejectionReason string
}

// ClarificationAnswer carries the user's reply to a clarification question
// back to the classifier on resubmission.
type ClarificationAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
