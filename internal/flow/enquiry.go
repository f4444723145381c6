package flow

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/suPer8Hu/leadchat/internal/catalog"
)

func (c *Controller) BeginEnquiryFlow() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(ModeInitial); err != nil {
		return err
	}
	c.category, c.subcategory = "", ""
	c.appendLocked(RoleAssistant, "Okay, I can help with that. Which product category are you interested in?")
	c.mode = ModeEnquiryCategory
	return nil
}

func (c *Controller) SelectCategory(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(ModeEnquiryCategory); err != nil {
		return err
	}

	cat, ok := c.deps.Catalog.Category(key)
	if !ok {
		c.category, c.subcategory = "", ""
		return c.resetLocked(ModeFreeChat, "Sorry, that product category is not available.",
			fmt.Sprintf("unknown category %q", key))
	}

	c.category = key
	c.appendLocked(RoleUser, fmt.Sprintf("I'm interested in %s.", cat.Label))
	if len(cat.Subcategories) > 0 {
		prompt := cat.Prompt
		if prompt == "" {
			prompt = fmt.Sprintf("Great! Which type of %s are you looking for?", strings.ToLower(cat.Label))
		}
		c.appendLocked(RoleAssistant, prompt)
		c.mode = ModeEnquirySubcategory
	} else {
		log.Printf("[Controller] category=%s has no subcategories", key)
		c.appendLocked(RoleAssistant, fmt.Sprintf("Sorry, I couldn't find specific products for %s. Is there anything else?", cat.Label))
		c.mode = ModeFreeChat
	}
	c.emitLocked(EventButtonClick, map[string]any{"type": "category_select", "category": key, "label": cat.Label})
	return nil
}

func (c *Controller) SelectSubcategory(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(ModeEnquirySubcategory); err != nil {
		return err
	}

	cat, ok := c.deps.Catalog.Category(c.category)
	if !ok {
		c.category, c.subcategory = "", ""
		return c.resetLocked(ModeInitial, "Sorry, something went wrong. Please start again.", "no category selected")
	}
	sub, ok := cat.Subcategory(key)
	if !ok {
		c.subcategory = ""
		return c.resetLocked(ModeInitial, "Sorry, something went wrong. Please start again.",
			fmt.Sprintf("unknown subcategory %q for category %q", key, c.category))
	}

	c.subcategory = key
	c.appendLocked(RoleUser, fmt.Sprintf("Okay, tell me more about %s.", sub.Label))
	prompt := sub.Prompt
	if prompt == "" {
		prompt = fmt.Sprintf("Okay, for %s, which document or action would you like?", sub.Label)
	}
	c.appendLocked(RoleAssistant, prompt)
	c.mode = ModeEnquiryResource
	c.emitLocked(EventButtonClick, map[string]any{
		"type": "subcategory_select", "category": c.category, "subcategory": key, "label": sub.Label,
	})
	return nil
}

func (c *Controller) currentSubcategoryLocked() (catalog.Subcategory, bool) {
	cat, ok := c.deps.Catalog.Category(c.category)
	if !ok {
		return catalog.Subcategory{}, false
	}
	return cat.Subcategory(c.subcategory)
}

func usableURL(u string) bool {
	u = strings.TrimSpace(u)
	return u != "" && u != "#"
}

func (c *Controller) open(url string) bool {
	if c.deps.Opener == nil {
		log.Printf("[Controller] no url opener configured url=%s", url)
		return false
	}
	if err := c.deps.Opener.Open(url); err != nil {
		log.Printf("[Controller] open url failed url=%s err=%v", url, err)
		return false
	}
	return true
}

// OpenProductPage opens the selected subcategory's product page.
func (c *Controller) OpenProductPage() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(ModeEnquiryResource); err != nil {
		return err
	}
	sub, ok := c.currentSubcategoryLocked()
	if !ok {
		return c.resetLocked(ModeInitial, "Sorry, something went wrong. Please start again.", "no subcategory selected")
	}

	if !usableURL(sub.ProductPageURL) || !c.open(sub.ProductPageURL) {
		c.appendLocked(RoleAssistant, fmt.Sprintf("Sorry, the product page link for %s seems to be missing.", sub.Label))
		return nil
	}
	c.appendLocked(RoleUser, fmt.Sprintf("View Product Page (%s)", sub.Label))
	c.appendLocked(RoleAssistant, fmt.Sprintf("Okay, opening the product page for %s.", sub.Label))
	c.category, c.subcategory = "", ""
	c.mode = ModeFreeChat
	return nil
}

// SelectResource acts on one resource button. It never talks to the assistant.
func (c *Controller) SelectResource(r catalog.Resource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(ModeEnquiryResource); err != nil {
		return err
	}

	c.emitLocked(EventButtonClick, map[string]any{
		"type": "resource_select", "category": c.category, "subcategory": c.subcategory,
		"resource": r.Label, "resource_type": string(r.Type),
	})
	c.appendLocked(RoleUser, r.Label)

	next := ModeFreeChat
	var reply string
	switch {
	case r.Type.OpensURL():
		if usableURL(r.Value) && c.open(r.Value) {
			reply = "Okay, opening the link for: " + r.Label
		} else {
			reply = fmt.Sprintf("Sorry, the link for '%s' seems to be missing or invalid.", r.Label)
		}
	case r.Type == catalog.ResourceLeadContact:
		reply = "Okay, I can help with that. Please provide your contact details below."
		c.leadContext = r.Value
		next = ModeLeadContactForm
	case r.Type == catalog.ResourceLeadSample:
		reply = "Okay, I can help request a sample. Please provide your details and delivery address below."
		c.leadContext = r.Value
		next = ModeLeadSampleForm
	default:
		log.Printf("[Controller] unhandled resource type=%s label=%s", r.Type, r.Label)
		reply = fmt.Sprintf("Sorry, I'm not sure how to handle '%s' right now.", r.Label)
	}
	c.appendLocked(RoleAssistant, reply)

	c.category, c.subcategory = "", ""
	c.mode = next
	return nil
}

// SelectResourceKey resolves a resource of the current subcategory by key.
func (c *Controller) SelectResourceKey(key string) error {
	c.mu.Lock()
	sub, ok := c.currentSubcategoryLocked()
	c.mu.Unlock()
	if ok {
		for _, r := range sub.Resources {
			if r.Key == key {
				return c.SelectResource(r)
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(ModeEnquiryResource); err != nil {
		return err
	}
	return c.resetLocked(ModeInitial, "Sorry, something went wrong. Please start again.",
		fmt.Sprintf("unknown resource %q", key))
}

// TellMeMore hands the selected product over to the assistant.
func (c *Controller) TellMeMore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(ModeEnquiryResource); err != nil {
		return err
	}
	sub, ok := c.currentSubcategoryLocked()
	if !ok {
		return c.resetLocked(ModeInitial, "Sorry, something went wrong. Please start again.", "no subcategory selected")
	}

	category, subcategory := c.category, c.subcategory
	text := fmt.Sprintf("Tell me more about %s.", sub.Label)
	c.appendLocked(RoleUser, text)
	c.category, c.subcategory = "", ""

	err := c.exchangeLocked(ctx, text, false)
	c.mode = ModeFreeChat
	c.emitLocked(EventButtonClick, map[string]any{"type": "tell_me_more", "category": category, "subcategory": subcategory})
	return err
}
