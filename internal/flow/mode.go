package flow

import (
	"fmt"

	"github.com/suPer8Hu/leadchat/internal/catalog"
)

type Mode int

const (
	ModeInitial Mode = iota
	ModeCallbackName
	ModeCallbackPhone
	ModeCallbackEnquiry
	ModeCallbackDateTime
	ModeCallbackTime
	ModeEnquiryCategory
	ModeEnquirySubcategory
	ModeEnquiryResource
	ModeLeadContactForm
	ModeLeadSampleForm
	ModeFreeChat
)

var modeNames = [...]string{
	ModeInitial:            "INITIAL",
	ModeCallbackName:       "CALLBACK_NAME",
	ModeCallbackPhone:      "CALLBACK_PHONE",
	ModeCallbackEnquiry:    "CALLBACK_ENQUIRY",
	ModeCallbackDateTime:   "CALLBACK_DATETIME",
	ModeCallbackTime:       "CALLBACK_TIME",
	ModeEnquiryCategory:    "ENQUIRY_CATEGORY",
	ModeEnquirySubcategory: "ENQUIRY_SUBCATEGORY",
	ModeEnquiryResource:    "ENQUIRY_RESOURCE",
	ModeLeadContactForm:    "LEAD_CAPTURE_CONTACT_FORM",
	ModeLeadSampleForm:     "LEAD_CAPTURE_SAMPLE_FORM",
	ModeFreeChat:           "FREE_CHAT",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// Field names an input the UI collects, and keys field-local errors.
type Field string

const (
	FieldEmail       Field = "email"
	FieldName        Field = "name"
	FieldPhone       Field = "phone"
	FieldEnquiry     Field = "enquiry"
	FieldDate        Field = "date"
	FieldLeadName    Field = "lead_name"
	FieldLeadEmail   Field = "lead_email"
	FieldLeadPhone   Field = "lead_phone"
	FieldLeadAddress Field = "lead_address"
	FieldLeadForm    Field = "lead_form"
)

// Action keys for the fixed buttons; catalog buttons use catalog keys.
const (
	ActionCallback    = "callback"
	ActionEnquiry     = "enquiry"
	ActionFreeChat    = "chat"
	ActionProductPage = "product_page"
	ActionTellMeMore  = "tell_me_more"
)

type Action struct {
	Key   string
	Label string
}

// Panel is what the UI should offer below the message log.
type Panel struct {
	Actions    []Action
	Inputs     []Field
	DatePicker bool
	FreeText   bool
}

// Selection is the accumulated state a panel depends on.
type Selection struct {
	CallbackAvailable bool
	Catalog           *catalog.Catalog
	Category          *catalog.Category
	Subcategory       *catalog.Subcategory
}

// Affordances maps a mode to its panel. It has no side effects.
func Affordances(mode Mode, sel Selection) Panel {
	switch mode {
	case ModeInitial:
		var actions []Action
		if sel.CallbackAvailable {
			actions = append(actions, Action{ActionCallback, "Arrange a Callback"})
		}
		actions = append(actions,
			Action{ActionEnquiry, "Enquire More About Our Products"},
			Action{ActionFreeChat, "Or, ask a question..."},
		)
		return Panel{Actions: actions}
	case ModeCallbackName:
		return Panel{Inputs: []Field{FieldName}}
	case ModeCallbackPhone:
		return Panel{Inputs: []Field{FieldPhone}}
	case ModeCallbackEnquiry:
		return Panel{Inputs: []Field{FieldEnquiry}}
	case ModeCallbackDateTime:
		return Panel{DatePicker: true}
	case ModeCallbackTime:
		actions := make([]Action, 0, len(TimeSlots))
		for _, s := range TimeSlots {
			actions = append(actions, Action{s.Value, s.Label})
		}
		return Panel{Actions: actions}
	case ModeEnquiryCategory:
		var actions []Action
		if sel.Catalog != nil {
			for _, c := range sel.Catalog.Categories() {
				actions = append(actions, Action{c.Key, c.Label})
			}
		}
		return Panel{Actions: actions}
	case ModeEnquirySubcategory:
		var actions []Action
		if sel.Category != nil {
			for _, s := range sel.Category.Subcategories {
				actions = append(actions, Action{s.Key, s.Label})
			}
		}
		return Panel{Actions: actions}
	case ModeEnquiryResource:
		if sel.Subcategory == nil {
			return Panel{}
		}
		var actions []Action
		if sel.Subcategory.ProductPageURL != "" {
			actions = append(actions, Action{ActionProductPage, "View Product Page"})
		}
		for _, r := range sel.Subcategory.Resources {
			actions = append(actions, Action{r.Key, r.Label})
		}
		actions = append(actions, Action{ActionTellMeMore, "Ask About This Product"})
		return Panel{Actions: actions}
	case ModeLeadContactForm:
		return Panel{Inputs: []Field{FieldLeadName, FieldLeadEmail, FieldLeadPhone}}
	case ModeLeadSampleForm:
		return Panel{Inputs: []Field{FieldLeadName, FieldLeadEmail, FieldLeadPhone, FieldLeadAddress}}
	case ModeFreeChat:
		return Panel{FreeText: true}
	}
	return Panel{}
}
