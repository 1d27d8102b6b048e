package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-errors/errors"
	"github.com/gobuffalo/packr/v2"
	"gopkg.in/yaml.v3"
)

const defaultCatalogFile = "products.json"

// Load reads a catalog from a .json, .yaml or .yml file.
func Load(path string) (*Catalog, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("Could not read catalog: %v", err)
	}

	return Parse(filepath.Ext(path), payload)
}

// LoadDefault reads the catalog bundled with the binary.
func LoadDefault() (*Catalog, error) {
	box := packr.New("catalog", "./data")

	payload, err := box.Find(defaultCatalogFile)
	if err != nil {
		return nil, errors.Errorf("Could not read bundled catalog: %v", err)
	}

	return Parse(filepath.Ext(defaultCatalogFile), payload)
}

// Parse decodes a list of products, the format is picked by file extension.
func Parse(ext string, payload []byte) (*Catalog, error) {
	var products []Product

	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(payload, &products); err != nil {
			return nil, errors.Errorf("Could not parse catalog: %v", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(payload, &products); err != nil {
			return nil, errors.Errorf("Could not parse catalog: %v", err)
		}
	default:
		return nil, errors.Errorf("unsupported catalog format %q", ext)
	}

	if err := validate(products); err != nil {
		return nil, err
	}

	return New(products), nil
}

func validate(products []Product) error {
	seen := make(map[string]bool, len(products))

	for i, product := range products {
		if product.ID == "" {
			return errors.Errorf("product %d has no id", i)
		}

		if seen[product.ID] {
			return errors.Errorf("duplicate product id %q", product.ID)
		}
		seen[product.ID] = true

		if product.Name == "" {
			return errors.Errorf("product %q has no name", product.ID)
		}

		if product.Price <= 0 {
			return errors.Errorf("product %q has non-positive price %d", product.ID, product.Price)
		}
	}

	return nil
}
