package catalog

import (
	"github.com/shopspring/decimal"
)

// Product is an item for sale. Products are loaded once and never change.
type Product struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Price       int64  `json:"price" yaml:"price"`
	Description string `json:"description" yaml:"description"`
}

// PriceBTC formats the price in bitcoin with all eight decimals.
func (p Product) PriceBTC() string {
	return decimal.New(p.Price, -8).StringFixed(8)
}

// Catalog is a fixed, ordered list of products. It is safe for concurrent
// use since it is never mutated after New.
type Catalog struct {
	products []Product
}

func New(products []Product) *Catalog {
	c := &Catalog{
		products: make([]Product, len(products)),
	}

	copy(c.products, products)

	return c
}

// Find returns the product with the given id or nil.
func (c *Catalog) Find(id string) *Product {
	for i := range c.products {
		if c.products[i].ID == id {
			product := c.products[i]
			return &product
		}
	}

	return nil
}

// All returns the products in catalog order.
func (c *Catalog) All() []Product {
	products := make([]Product, len(c.products))
	copy(products, c.products)

	return products
}

func (c *Catalog) Len() int {
	return len(c.products)
}
