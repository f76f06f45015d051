package carrier

import (
	"fmt"
	"strings"
)

// Payment method labels the carrier accepts.
const (
	PaymentMethodPrepaid = "Prepaid"
	PaymentMethodCOD     = "COD"
)

// OrderItem is one line in a carrier order payload.
type OrderItem struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Units        int     `json:"units"`
	SellingPrice float64 `json:"selling_price"`
	Discount     float64 `json:"discount"`
	Tax          float64 `json:"tax"`
	HSN          string  `json:"hsn,omitempty"`
}

// OrderPayload is the adhoc order creation request sent to the carrier.
type OrderPayload struct {
	OrderID           string      `json:"order_id"`
	OrderDate         string      `json:"order_date"`
	PickupLocation    string      `json:"pickup_location"`
	BillingName       string      `json:"billing_customer_name"`
	BillingLastName   string      `json:"billing_last_name"`
	BillingAddress    string      `json:"billing_address"`
	BillingAddress2   string      `json:"billing_address_2,omitempty"`
	BillingCity       string      `json:"billing_city"`
	BillingPincode    string      `json:"billing_pincode"`
	BillingState      string      `json:"billing_state"`
	BillingCountry    string      `json:"billing_country"`
	BillingEmail      string      `json:"billing_email,omitempty"`
	BillingPhone      string      `json:"billing_phone"`
	ShippingIsBilling bool        `json:"shipping_is_billing"`
	ShippingName      string      `json:"shipping_customer_name,omitempty"`
	ShippingAddress   string      `json:"shipping_address,omitempty"`
	ShippingCity      string      `json:"shipping_city,omitempty"`
	ShippingPincode   string      `json:"shipping_pincode,omitempty"`
	ShippingState     string      `json:"shipping_state,omitempty"`
	ShippingCountry   string      `json:"shipping_country,omitempty"`
	ShippingPhone     string      `json:"shipping_phone,omitempty"`
	OrderItems        []OrderItem `json:"order_items"`
	PaymentMethod     string      `json:"payment_method"`
	SubTotal          float64     `json:"sub_total"`
	Length            float64     `json:"length"`
	Breadth           float64     `json:"breadth"`
	Height            float64     `json:"height"`
	Weight            float64     `json:"weight"`
}

// Validate checks the payload for the fields the carrier rejects orders
// without. Shipping fields are only required when the shipping address
// differs from billing.
func (p *OrderPayload) Validate() error {
	var missing []string

	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	check("order_id", p.OrderID)
	check("order_date", p.OrderDate)
	check("pickup_location", p.PickupLocation)
	check("billing_customer_name", p.BillingName)
	check("billing_address", p.BillingAddress)
	check("billing_city", p.BillingCity)
	check("billing_pincode", p.BillingPincode)
	check("billing_state", p.BillingState)
	check("billing_country", p.BillingCountry)
	check("billing_phone", p.BillingPhone)
	check("payment_method", p.PaymentMethod)

	if len(p.OrderItems) == 0 {
		missing = append(missing, "order_items")
	}
	for i, item := range p.OrderItems {
		if strings.TrimSpace(item.Name) == "" {
			missing = append(missing, fmt.Sprintf("order_items[%d].name", i))
		}
		if item.Units <= 0 {
			missing = append(missing, fmt.Sprintf("order_items[%d].units", i))
		}
		if item.SellingPrice <= 0 {
			missing = append(missing, fmt.Sprintf("order_items[%d].selling_price", i))
		}
	}

	if !p.ShippingIsBilling {
		check("shipping_customer_name", p.ShippingName)
		check("shipping_address", p.ShippingAddress)
		check("shipping_city", p.ShippingCity)
		check("shipping_pincode", p.ShippingPincode)
		check("shipping_state", p.ShippingState)
		check("shipping_country", p.ShippingCountry)
		check("shipping_phone", p.ShippingPhone)
	}

	if len(missing) > 0 {
		return fmt.Errorf("carrier payload missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// CreateOrderResponse is the carrier's reply to adhoc order creation.
type CreateOrderResponse struct {
	OrderID     int64  `json:"order_id"`
	ShipmentID  int64  `json:"shipment_id"`
	Status      string `json:"status"`
	StatusCode  int    `json:"status_code"`
	AWBCode     string `json:"awb_code"`
	CourierID   string `json:"courier_company_id"`
	CourierName string `json:"courier_name"`
}

// AssignAWBRequest asks the carrier to assign a waybill to a shipment.
type AssignAWBRequest struct {
	ShipmentID string `json:"shipment_id"`
	CourierID  string `json:"courier_id,omitempty"`
}

// AssignAWBResponse is the carrier's reply to waybill assignment.
type AssignAWBResponse struct {
	AWBAssignStatus int `json:"awb_assign_status"`
	Response        struct {
		Data struct {
			AWBCode     string `json:"awb_code"`
			CourierID   int64  `json:"courier_company_id"`
			CourierName string `json:"courier_name"`
			LabelURL    string `json:"label_url"`
			ManifestURL string `json:"manifest_url"`
		} `json:"data"`
	} `json:"response"`
}

// PickupRequest schedules courier pickup for shipments.
type PickupRequest struct {
	ShipmentIDs []string `json:"shipment_id"`
}

// PickupResponse is the carrier's reply to a pickup request.
type PickupResponse struct {
	PickupStatus int `json:"pickup_status"`
	Response     struct {
		PickupScheduledDate string `json:"pickup_scheduled_date"`
		PickupTokenNumber   string `json:"pickup_token_number"`
	} `json:"response"`
}

// TrackingActivity is one scan event in a tracking response.
type TrackingActivity struct {
	Date     string `json:"date"`
	Status   string `json:"status"`
	Activity string `json:"activity"`
	Location string `json:"location"`
}

// TrackingResponse is the carrier's tracking data for a shipment.
type TrackingResponse struct {
	TrackingData struct {
		ShipmentStatus string             `json:"current_status"`
		AWB            string             `json:"awb_code"`
		CourierName    string             `json:"courier_name"`
		ETD            string             `json:"etd"`
		Activities     []TrackingActivity `json:"shipment_track_activities"`
	} `json:"tracking_data"`
}

// ActivityLines flattens the scan activities for status derivation. Status
// codes and activity text stay separate lines so each can be matched as a
// whole label.
func (t *TrackingResponse) ActivityLines() []string {
	lines := make([]string, 0, 2*len(t.TrackingData.Activities))
	for _, a := range t.TrackingData.Activities {
		if a.Status != "" {
			lines = append(lines, a.Status)
		}
		if a.Activity != "" {
			lines = append(lines, a.Activity)
		}
	}
	return lines
}

// Courier is one serviceable courier option.
type Courier struct {
	ID            int64   `json:"courier_company_id"`
	Name          string  `json:"courier_name"`
	Rate          float64 `json:"rate"`
	EstimatedDays string  `json:"estimated_delivery_days"`
	CODAvailable  int     `json:"cod"`
}

// ServiceabilityRequest queries couriers for a lane.
type ServiceabilityRequest struct {
	PickupPostcode   string
	DeliveryPostcode string
	WeightKg         float64
	COD              bool
}

// ServiceabilityResponse lists couriers able to serve a lane.
type ServiceabilityResponse struct {
	Data struct {
		AvailableCouriers []Courier `json:"available_courier_companies"`
	} `json:"data"`
}

// CancelRequest cancels carrier orders by their carrier order IDs.
type CancelRequest struct {
	IDs []string `json:"ids"`
}

// authRequest is the carrier login request body.
type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse is the carrier login reply.
type authResponse struct {
	Token string `json:"token"`
}
