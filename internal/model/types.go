// Package model defines domain types used by the service.
package model

import (
	"strings"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/apperr"
)

// Product is a catalog item. ID is assigned by the store on create.
type Product struct {
	ID          string  `json:"id"`
	ProductName string  `json:"productName"`
	Code        string  `json:"code"`
	Price       float64 `json:"price"`
	Model       string  `json:"model"`
	ProductURL  string  `json:"productUrl"`
}

// ProductInput is the body accepted by create and update. ID is accepted
// for compatibility with clients that echo full products back; it is
// always ignored.
type ProductInput struct {
	ID          string   `json:"id,omitempty"`
	ProductName *string  `json:"productName"`
	Code        *string  `json:"code"`
	Price       *float64 `json:"price"`
	Model       *string  `json:"model"`
	ProductURL  *string  `json:"productUrl"`
}

// Validate checks that every field is present and the price is not negative.
func (in ProductInput) Validate() error {
	switch {
	case in.ProductName == nil:
		return apperr.Validation("productName is required")
	case in.Code == nil || strings.TrimSpace(*in.Code) == "":
		return apperr.Validation("code is required")
	case in.Price == nil:
		return apperr.Validation("price is required")
	case *in.Price < 0:
		return apperr.Validation("price must be >= 0")
	case in.Model == nil:
		return apperr.Validation("model is required")
	case in.ProductURL == nil:
		return apperr.Validation("productUrl is required")
	}
	return nil
}

// Product builds a product from a validated input. The ID is left empty.
func (in ProductInput) Product() Product {
	return Product{
		ProductName: *in.ProductName,
		Code:        *in.Code,
		Price:       *in.Price,
		Model:       *in.Model,
		ProductURL:  *in.ProductURL,
	}
}
