package experiment

import "fmt"

// Variant identifies one arm of an experiment. The set is closed: every
// switch over Variant handles Control, VariantA and VariantB.
type Variant uint8

const (
	Control Variant = iota
	VariantA
	VariantB
)

// AllVariants lists the arms in their fixed bucketing order.
var AllVariants = []Variant{Control, VariantA, VariantB}

func (v Variant) String() string {
	switch v {
	case Control:
		return "control"
	case VariantA:
		return "variant_a"
	case VariantB:
		return "variant_b"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// ParseVariant maps a wire label onto a Variant.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "control":
		return Control, nil
	case "variant_a":
		return VariantA, nil
	case "variant_b":
		return VariantB, nil
	default:
		return 0, &ValidationError{Field: "variant", Reason: fmt.Sprintf("unknown variant %q", s)}
	}
}

func (v Variant) MarshalText() ([]byte, error) {
	switch v {
	case Control, VariantA, VariantB:
		return []byte(v.String()), nil
	default:
		return nil, fmt.Errorf("invalid variant %d", uint8(v))
	}
}

func (v *Variant) UnmarshalText(text []byte) error {
	parsed, err := ParseVariant(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Ptr returns a pointer to a copy of v.
func (v Variant) Ptr() *Variant {
	return &v
}
