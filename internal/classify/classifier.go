package classify

import "context"

// Intent is the classifier's reading of what the customer wants.
type Intent string

const (
	IntentStartOrder       Intent = "START_ORDER"
	IntentSelectRestaurant Intent = "SELECT_RESTAURANT"
	IntentViewMenu         Intent = "VIEW_MENU"
	IntentAddItem          Intent = "ADD_ITEM"
	IntentRemoveItem       Intent = "REMOVE_ITEM"
	IntentConfirm          Intent = "CONFIRM"
	IntentCancel           Intent = "CANCEL"
	IntentChoose           Intent = "CHOOSE" // picking from a numbered list
	IntentUnknown          Intent = "UNKNOWN"
)

// ExtractedItem is one line item the classifier pulled out of free text.
type ExtractedItem struct {
	Name     string
	Quantity int
	Category string
}

// Validation is the classifier's judgement of the extracted structure.
// isValid=false is a hard rejection; isComplete=false means ask for more;
// warnings mean proceed but inform the user.
type Validation struct {
	IsValid         bool
	IsComplete      bool
	MissingRequired []string
	Warnings        []string
	Errors          []string
}

// Result is the structured output for one inbound message.
type Result struct {
	Intent     Intent
	Items      []ExtractedItem
	Choice     int // 1-based option for IntentChoose, 0 when absent
	Validation Validation
}

// Context gives the classifier the conversational state it needs to
// disambiguate ("2" can be a quantity, a menu option, or a list choice).
type Context struct {
	State        string
	RestaurantID string
	MenuNames    []string
}

// Classifier is the external NLU collaborator. How it classifies is outside
// this core; an outage must degrade to a help fallback, never a hard error
// to the customer.
type Classifier interface {
	Classify(ctx context.Context, text string, convCtx Context) (*Result, error)
}
