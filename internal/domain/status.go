package domain

import "strings"

// Canonical fulfillment statuses. Orders and shipments share this vocabulary
// so a carrier update can be pushed onto both records without translation.
const (
	StatusPending        = "pending"
	StatusProcessing     = "processing"
	StatusConfirmed      = "confirmed"
	StatusManifested     = "manifested"
	StatusOutForPickup   = "out_for_pickup"
	StatusPickedUp       = "picked_up"
	StatusShipped        = "shipped"
	StatusInTransit      = "in_transit"
	StatusOutForDelivery = "out_for_delivery"
	StatusDelivered      = "delivered"
	StatusCancelled      = "cancelled"
	StatusReturned       = "returned"
)

// ValidStatuses returns all canonical statuses.
func ValidStatuses() []string {
	return []string{
		StatusPending,
		StatusProcessing,
		StatusConfirmed,
		StatusManifested,
		StatusOutForPickup,
		StatusPickedUp,
		StatusShipped,
		StatusInTransit,
		StatusOutForDelivery,
		StatusDelivered,
		StatusCancelled,
		StatusReturned,
	}
}

// IsValidStatus checks if a status string is canonical.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// statusMap translates normalized carrier status labels to canonical statuses.
var statusMap = map[string]string{
	"new":              StatusProcessing,
	"processing":       StatusProcessing,
	"confirmed":        StatusConfirmed,
	"invoiced":         StatusProcessing,
	"manifested":       StatusManifested,
	"out_for_pickup":   StatusOutForPickup,
	"picked_up":        StatusPickedUp,
	"order_shipped":    StatusShipped,
	"shipped":          StatusShipped,
	"in_transit":       StatusInTransit,
	"out_for_delivery": StatusOutForDelivery,
	"delivered":        StatusDelivered,
	"cancelled":        StatusCancelled,
	"canceled":         StatusCancelled,
	"return_to_origin": StatusReturned,
	"rto":              StatusReturned,
	"returned":         StatusReturned,
}

// activityKeyword pairs an uppercase carrier scan activity label with the
// canonical status it implies. Order matters: the first match wins, and
// later-stage keywords are listed first so the freshest scan dominates.
type activityKeyword struct {
	keyword string
	status  string
}

var activityKeywords = []activityKeyword{
	{"DELIVERED", StatusDelivered},
	{"OUT_FOR_DELIVERY", StatusOutForDelivery},
	{"ORDER_IN_TRANSIT", StatusInTransit},
	{"PICKED_UP", StatusPickedUp},
	{"OUT_FOR_PICKUP", StatusOutForPickup},
	{"ORDER_SHIPPED", StatusShipped},
	{"RETURNED", StatusReturned},
	{"FAILED_DELIVERY", StatusInTransit},
}

// NormalizeStatus lowercases a raw carrier status and collapses spaces and
// hyphens to underscores, e.g. "Out For Delivery" and "out-for-delivery"
// both become "out_for_delivery".
func NormalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

// DeriveCanonicalStatus maps a raw carrier status plus recent scan activities
// to a canonical status. Resolution order: the fixed status table, then
// keyword matching against the activities, then "processing" as the default
// so an unrecognized update never stalls a shipment in a terminal-looking
// state.
func DeriveCanonicalStatus(rawStatus string, activities []string) string {
	if s, ok := statusMap[NormalizeStatus(rawStatus)]; ok {
		return s
	}

	// Activities match on whole labels only. A substring scan would let
	// "UNDELIVERED" satisfy "DELIVERED" and close the shipment early.
	normalized := make([]string, 0, len(activities))
	for _, a := range activities {
		normalized = append(normalized, strings.ToUpper(NormalizeStatus(a)))
	}
	for _, ak := range activityKeywords {
		for _, a := range normalized {
			if a == ak.keyword {
				return ak.status
			}
		}
	}

	return StatusProcessing
}

// IsTerminalStatus reports whether a status ends the shipment lifecycle.
func IsTerminalStatus(status string) bool {
	return status == StatusDelivered || status == StatusCancelled || status == StatusReturned
}
