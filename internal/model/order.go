package model

import (
	"strings"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/apperr"
)

type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "CASH"
	PaymentDebitCard  PaymentMethod = "DEBIT_CARD"
	PaymentCreditCard PaymentMethod = "CREDIT_CARD"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCash, PaymentDebitCard, PaymentCreditCard:
		return true
	}
	return false
}

type ShippingType string

const (
	ShippingEconomic ShippingType = "ECONOMIC"
	ShippingUrgent   ShippingType = "URGENT"
)

func (s ShippingType) Valid() bool { return s == ShippingEconomic || s == ShippingUrgent }

type Carrier string

const (
	CarrierCorreios Carrier = "CORREIOS"
	CarrierFedex    Carrier = "FEDEX"
)

func (c Carrier) Valid() bool { return c == CarrierCorreios || c == CarrierFedex }

type Billing struct {
	Payment    PaymentMethod `json:"payment"`
	TotalPrice float64       `json:"totalPrice"`
}

type Shipping struct {
	Type    ShippingType `json:"type"`
	Carrier Carrier      `json:"carrier"`
}

// OrderProduct is the price snapshot of a product taken when the order was
// placed. Later price changes on the product never touch it.
type OrderProduct struct {
	Code  string  `json:"code"`
	Price float64 `json:"price"`
}

// Order is keyed by (Email, ID) and never mutated after creation.
type Order struct {
	Email     string         `json:"email"`
	ID        string         `json:"id"`
	CreatedAt int64          `json:"createdAt"`
	Billing   Billing        `json:"billing"`
	Shipping  Shipping       `json:"shipping"`
	Products  []OrderProduct `json:"products"`
}

// ProductCodes lists the codes of the ordered products in order.
func (o Order) ProductCodes() []string {
	codes := make([]string, 0, len(o.Products))
	for _, p := range o.Products {
		codes = append(codes, p.Code)
	}
	return codes
}

// OrderRequest is the body of POST /orders.
type OrderRequest struct {
	Email      string        `json:"email"`
	ProductsID []string      `json:"productsId"`
	Payment    PaymentMethod `json:"payment"`
	Shipping   Shipping      `json:"shipping"`
}

// Validate enforces the request model: email, at least one distinct
// product id, and known payment/shipping values.
func (r OrderRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return apperr.Validation("email is required")
	}
	if len(r.ProductsID) == 0 {
		return apperr.Validation("productsId must contain at least one id")
	}
	seen := make(map[string]struct{}, len(r.ProductsID))
	for _, id := range r.ProductsID {
		if strings.TrimSpace(id) == "" {
			return apperr.Validation("productsId contains an empty id")
		}
		if _, dup := seen[id]; dup {
			return apperr.Validation("productsId contains duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
	if !r.Payment.Valid() {
		return apperr.Validation("payment must be one of CASH, DEBIT_CARD, CREDIT_CARD")
	}
	if !r.Shipping.Type.Valid() {
		return apperr.Validation("shipping.type must be one of ECONOMIC, URGENT")
	}
	if !r.Shipping.Carrier.Valid() {
		return apperr.Validation("shipping.carrier must be one of CORREIOS, FEDEX")
	}
	return nil
}
