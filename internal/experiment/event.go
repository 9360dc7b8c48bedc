package experiment

import "time"

// ConversionEvent is one impression funnel instance: created at impression
// time, then optionally clicked and converted, each at most once.
type ConversionEvent struct {
	ID              string   `json:"id"`
	ShopID          string   `json:"shop_id"`
	OfferID         string   `json:"offer_id"`
	ExperimentID    string   `json:"experiment_id,omitempty"`
	SessionID       string   `json:"session_id"`
	AssignedVariant *Variant `json:"assigned_variant,omitempty"`

	ImpressionAt time.Time  `json:"impression_at"`
	ClickedAt    *time.Time `json:"clicked_at,omitempty"`
	ConvertedAt  *time.Time `json:"converted_at,omitempty"`

	ConversionOrderID  string  `json:"conversion_order_id,omitempty"`
	ConversionRevenue  float64 `json:"conversion_revenue,omitempty"`
	ConversionQuantity int     `json:"conversion_quantity,omitempty"`
}

// Counted reports whether this event feeds an experiment's counters.
func (ev *ConversionEvent) Counted() bool {
	return ev.ExperimentID != "" && ev.AssignedVariant != nil
}

// Impression describes a new impression reported by the offer-serving side.
type Impression struct {
	ShopID       string   `json:"shop_id" validate:"required,max=255"`
	OfferID      string   `json:"offer_id" validate:"required,max=255"`
	ExperimentID string   `json:"experiment_id,omitempty" validate:"max=255"`
	SessionID    string   `json:"session_id" validate:"required,max=255"`
	Variant      *Variant `json:"variant,omitempty"`
}

func (in *Impression) Validate() error {
	return structError(validate.Struct(in))
}

// Conversion carries the order facts of a conversion.
type Conversion struct {
	OrderID  string  `json:"order_id" validate:"required,max=255"`
	Revenue  float64 `json:"revenue" validate:"gte=0"`
	Quantity int     `json:"quantity" validate:"gte=0"`
}

func (in *Conversion) Validate() error {
	return structError(validate.Struct(in))
}
