package catalog

// Package catalog provides the product catalog and country-dependent pricing.

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Catalog struct {
	Shop     ShopConfig `yaml:"shop"`
	Products []Product  `yaml:"products"`
}

type ShopConfig struct {
	Name        string `yaml:"name"`
	BaseCountry string `yaml:"base_country"`
}

type Product struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Active      bool      `yaml:"active"`
	Variants    []Variant `yaml:"variants"`
}

// Variant prices are decimal strings in the currency of the country they
// apply to. Price is the base-country price; Prices holds optional fixed
// overrides keyed by country code.
type Variant struct {
	ID        string            `yaml:"id"`
	Title     string            `yaml:"title"`
	Price     string            `yaml:"price"`
	Available bool              `yaml:"available"`
	Prices    map[string]string `yaml:"prices"`
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(content []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(content, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &catalog, nil
}

func (p *Parser) ParseFromString(content string) (*Catalog, error) {
	return p.Parse([]byte(content))
}

// Load reads the catalog at path, or the embedded catalog when path is empty,
// and validates it.
func Load(path string) (*Catalog, error) {
	content := defaultCatalog
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
		}
		content = data
	}

	catalog, err := NewParser().Parse(content)
	if err != nil {
		return nil, err
	}
	if err := NewValidator().Validate(catalog); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return catalog, nil
}

// Variant looks up a variant and the product it belongs to.
func (c *Catalog) Variant(variantID string) (Product, Variant, bool) {
	if c == nil {
		return Product{}, Variant{}, false
	}
	for _, product := range c.Products {
		for _, variant := range product.Variants {
			if variant.ID == variantID {
				return product, variant, true
			}
		}
	}
	return Product{}, Variant{}, false
}
