package directory

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tenantops/graphadm/internal/graph"
)

// SubscribedSKU is one license SKU the tenant has purchased.
type SubscribedSKU struct {
	ID               string       `json:"id"`
	SKUID            string       `json:"skuId"`
	SKUPartNumber    string       `json:"skuPartNumber"`
	CapabilityStatus string       `json:"capabilityStatus"`
	ConsumedUnits    int          `json:"consumedUnits"`
	PrepaidUnits     PrepaidUnits `json:"prepaidUnits"`
}

// PrepaidUnits breaks a SKU's seat count down by state.
type PrepaidUnits struct {
	Enabled   int `json:"enabled"`
	Suspended int `json:"suspended"`
	Warning   int `json:"warning"`
}

// Available returns seats purchased but not yet consumed.
func (s SubscribedSKU) Available() int {
	return s.PrepaidUnits.Enabled - s.ConsumedUnits
}

// ListSubscribedSKUs returns the tenant's license inventory.
func (s *Service) ListSubscribedSKUs(ctx context.Context) ([]SubscribedSKU, error) {
	skus, err := graph.ListAll[SubscribedSKU](ctx, s.client, "/subscribedSkus")
	if err != nil {
		return nil, fmt.Errorf("list subscribed SKUs: %w", err)
	}
	return skus, nil
}

// SKUHeader is the license inventory report header.
var SKUHeader = []string{"SkuPartNumber", "SkuId", "Status", "Enabled", "Consumed", "Available", "Suspended", "Warning"}

// SKURow reshapes one SKU into a report row.
func SKURow(s SubscribedSKU) []string {
	return []string{
		s.SKUPartNumber,
		s.SKUID,
		s.CapabilityStatus,
		strconv.Itoa(s.PrepaidUnits.Enabled),
		strconv.Itoa(s.ConsumedUnits),
		strconv.Itoa(s.Available()),
		strconv.Itoa(s.PrepaidUnits.Suspended),
		strconv.Itoa(s.PrepaidUnits.Warning),
	}
}

// FindSKUByPartNumber resolves a human SKU name ("ENTERPRISEPACK") to its
// GUID for license assignment.
func FindSKUByPartNumber(skus []SubscribedSKU, partNumber string) (SubscribedSKU, bool) {
	for _, s := range skus {
		if s.SKUPartNumber == partNumber {
			return s, true
		}
	}
	return SubscribedSKU{}, false
}
