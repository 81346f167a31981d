// Package pair holds the pure companion-pair domain logic: the pair
// validator, the derived set status/seal computations, and the domain error
// taxonomy. Nothing in this package performs I/O.
package pair

import (
	"fmt"

	"gauge-tracking-backend/internal/model"
)

// specField is one comparable field of an equipment-type specification
// snapshot.
type specField struct {
	name string
	get  func(*model.Gauge) string
}

var threadSpecFields = []specField{
	{"thread_size", func(g *model.Gauge) string { return g.ThreadSize }},
	{"thread_class", func(g *model.Gauge) string { return g.ThreadClass }},
	{"thread_form", func(g *model.Gauge) string { return g.ThreadForm }},
	{"gauge_type", func(g *model.Gauge) string { return g.GaugeType }},
}

// specFields lists, per equipment type, exactly which snapshot fields must
// match for two gauges to pair. Comparing an explicit list (instead of
// deep-equality over the whole record) keeps unrelated optional fields from
// causing false mismatches.
var specFields = map[string][]specField{
	"thread_plug_gauge": threadSpecFields,
	"thread_ring_gauge": threadSpecFields,
	"pin_gauge": {
		{"thread_size", func(g *model.Gauge) string { return g.ThreadSize }},
		{"gauge_type", func(g *model.Gauge) string { return g.GaugeType }},
	},
}

func specFieldsFor(equipmentType string) []specField {
	if fields, ok := specFields[equipmentType]; ok {
		return fields
	}
	return threadSpecFields
}

// nonCompanionableGaugeTypes are single-gauge types (tapered pipe threads
// and friends) that check both limits with one tool and must never carry a
// companion reference.
var nonCompanionableGaugeTypes = map[string]bool{
	"NPT":  true,
	"NPTF": true,
	"ANPT": true,
}

// NonCompanionable reports whether a gauge's type forbids pairing.
func NonCompanionable(g *model.Gauge) bool {
	return nonCompanionableGaugeTypes[g.GaugeType]
}

// ValidatePair decides whether two gauge records may be linked as a
// companion pair. Invariants are checked in a fixed order and the first
// violation wins; the returned DomainError names the offending fields.
func ValidatePair(a, b *model.Gauge) error {
	// 1. Both records exist and are live.
	for _, g := range []*model.Gauge{a, b} {
		if g == nil {
			return &NotFoundError{}
		}
		if g.DeletedAt.Valid {
			return NewDomainError(CodeGaugeDeleted, "gauge is deleted", map[string]any{
				"gauge_id": g.ID,
			})
		}
	}

	// 2. Exactly one GO and one NOGO.
	if !(a.Suffix == model.SuffixGo && b.Suffix == model.SuffixNoGo) &&
		!(a.Suffix == model.SuffixNoGo && b.Suffix == model.SuffixGo) {
		return NewDomainError(CodeSuffixInvalid, "pair needs exactly one GO and one NOGO gauge", map[string]any{
			"suffix_a": string(a.Suffix),
			"suffix_b": string(b.Suffix),
		})
	}

	// 3. Same equipment type and category.
	if a.EquipmentType != b.EquipmentType || a.Category != b.Category {
		return NewDomainError(CodeTypeMismatch, "equipment type and category must match", map[string]any{
			"equipment_type_a": a.EquipmentType,
			"equipment_type_b": b.EquipmentType,
			"category_a":       a.Category,
			"category_b":       b.Category,
		})
	}

	// 4. Specification snapshots match field-for-field.
	for _, f := range specFieldsFor(a.EquipmentType) {
		va, vb := f.get(a), f.get(b)
		if va != vb {
			return NewDomainError(CodeSpecMismatch, fmt.Sprintf("specification field %s differs", f.name), map[string]any{
				"field":   f.name,
				"value_a": va,
				"value_b": vb,
			})
		}
	}

	// 5. Ownership matches; customer-owned gauges must share the customer.
	if a.OwnershipType != b.OwnershipType {
		return NewDomainError(CodeOwnershipMismatch, "ownership type must match", map[string]any{
			"ownership_a": string(a.OwnershipType),
			"ownership_b": string(b.OwnershipType),
		})
	}
	if a.OwnershipType == model.OwnershipCustomer && !sameCustomer(a.CustomerID, b.CustomerID) {
		return NewDomainError(CodeOwnershipMismatch, "customer-owned gauges must belong to the same customer", map[string]any{
			"customer_a": derefID(a.CustomerID),
			"customer_b": derefID(b.CustomerID),
		})
	}

	// 6. Companion references, where present, must already point at each
	// other. A one-way link is an integrity violation, never a valid input.
	if err := checkSymmetry(a, b); err != nil {
		return err
	}
	if err := checkSymmetry(b, a); err != nil {
		return err
	}

	// 7. Non-companionable types never pair.
	for _, g := range []*model.Gauge{a, b} {
		if NonCompanionable(g) {
			return NewDomainError(CodeNPTCompanionForbidden, "gauge type does not take a companion", map[string]any{
				"gauge_id":   g.ID,
				"gauge_type": g.GaugeType,
			})
		}
	}

	return nil
}

func checkSymmetry(g, other *model.Gauge) error {
	if g.CompanionID == nil {
		return nil
	}
	if *g.CompanionID != other.ID || other.CompanionID == nil || *other.CompanionID != g.ID {
		return NewDomainError(CodeLinkAsymmetric, "companion references are not mutual", map[string]any{
			"gauge_id":     g.ID,
			"companion_id": *g.CompanionID,
		})
	}
	return nil
}

func sameCustomer(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func derefID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
