// Package catalog holds the static product tree the enquiry flow walks:
// category -> subcategory -> resources.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type ResourceType string

const (
	ResourceLink        ResourceType = "link"
	ResourceGallery     ResourceType = "gallery"
	ResourceVideo       ResourceType = "video"
	ResourcePriceGuide  ResourceType = "price_guide"
	ResourceLeadContact ResourceType = "lead_capture_contact"
	ResourceLeadSample  ResourceType = "lead_capture_sample"
)

func (t ResourceType) Valid() bool {
	return t.OpensURL() || t.IsLeadCapture()
}

// OpensURL reports whether the resource value is a location to open.
func (t ResourceType) OpensURL() bool {
	switch t {
	case ResourceLink, ResourceGallery, ResourceVideo, ResourcePriceGuide:
		return true
	}
	return false
}

func (t ResourceType) IsLeadCapture() bool {
	return t == ResourceLeadContact || t == ResourceLeadSample
}

type Resource struct {
	Key   string       `yaml:"key" json:"key"`
	Label string       `yaml:"label" json:"label"`
	Type  ResourceType `yaml:"type" json:"type"`
	// Value is a URL for opening types, or the lead context for lead capture types.
	Value string `yaml:"value" json:"value"`
}

type Subcategory struct {
	Key            string     `yaml:"key" json:"key"`
	Label          string     `yaml:"label" json:"label"`
	Prompt         string     `yaml:"prompt" json:"prompt"`
	ProductPageURL string     `yaml:"product_page_url" json:"product_page_url,omitempty"`
	Resources      []Resource `yaml:"resources" json:"resources"`
}

type Category struct {
	Key           string        `yaml:"key" json:"key"`
	Label         string        `yaml:"label" json:"label"`
	Prompt        string        `yaml:"prompt" json:"prompt"`
	Subcategories []Subcategory `yaml:"subcategories" json:"subcategories"`
}

func (s Subcategory) clone() Subcategory {
	s.Resources = append([]Resource(nil), s.Resources...)
	return s
}

func (c Category) clone() Category {
	subs := make([]Subcategory, len(c.Subcategories))
	for i, s := range c.Subcategories {
		subs[i] = s.clone()
	}
	c.Subcategories = subs
	return c
}

func (c Category) Subcategory(key string) (Subcategory, bool) {
	for _, s := range c.Subcategories {
		if s.Key == key {
			return s.clone(), true
		}
	}
	return Subcategory{}, false
}

// Catalog is read-only after Parse. Lookups hand out deep copies.
type Catalog struct {
	categories []Category
}

func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	for i, cat := range c.categories {
		out[i] = cat.clone()
	}
	return out
}

func (c *Catalog) Category(key string) (Category, bool) {
	for _, cat := range c.categories {
		if cat.Key == key {
			return cat.clone(), true
		}
	}
	return Category{}, false
}

type document struct {
	Categories []Category `yaml:"categories"`
}

func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if len(doc.Categories) == 0 {
		return nil, errors.New("catalog: no categories")
	}

	seen := map[string]bool{}
	for _, cat := range doc.Categories {
		if strings.TrimSpace(cat.Key) == "" || strings.TrimSpace(cat.Label) == "" {
			return nil, errors.New("catalog: category needs key and label")
		}
		if seen[cat.Key] {
			return nil, fmt.Errorf("catalog: duplicate category %q", cat.Key)
		}
		seen[cat.Key] = true

		subSeen := map[string]bool{}
		for _, sub := range cat.Subcategories {
			if strings.TrimSpace(sub.Key) == "" || strings.TrimSpace(sub.Label) == "" {
				return nil, fmt.Errorf("catalog: %s: subcategory needs key and label", cat.Key)
			}
			if subSeen[sub.Key] {
				return nil, fmt.Errorf("catalog: %s: duplicate subcategory %q", cat.Key, sub.Key)
			}
			subSeen[sub.Key] = true
			resSeen := map[string]bool{}
			for _, r := range sub.Resources {
				if strings.TrimSpace(r.Key) == "" {
					return nil, fmt.Errorf("catalog: %s/%s: resource %q needs a key", cat.Key, sub.Key, r.Label)
				}
				if resSeen[r.Key] {
					return nil, fmt.Errorf("catalog: %s/%s: duplicate resource %q", cat.Key, sub.Key, r.Key)
				}
				resSeen[r.Key] = true
				if !r.Type.Valid() {
					return nil, fmt.Errorf("catalog: %s/%s: resource %q has unknown type %q", cat.Key, sub.Key, r.Label, r.Type)
				}
			}
		}
	}
	return &Catalog{categories: doc.Categories}, nil
}

func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return Parse(b)
}

//go:embed default.yaml
var defaultYAML []byte

// Default is the built-in product catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadOrDefault reads path when set, else returns the built-in catalog.
func LoadOrDefault(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return Load(path)
}
