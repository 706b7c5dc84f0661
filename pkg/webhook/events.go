// Package webhook manages Business Central change-notification
// subscriptions and receives the notifications they deliver.
package webhook

import "strings"

// Event names a resource change, e.g. "customer.created".
type Event string

// Supported events.
const (
	CustomerCreated        Event = "customer.created"
	CustomerUpdated        Event = "customer.updated"
	CustomerDeleted        Event = "customer.deleted"
	VendorCreated          Event = "vendor.created"
	VendorUpdated          Event = "vendor.updated"
	ItemCreated            Event = "item.created"
	ItemUpdated            Event = "item.updated"
	SalesOrderCreated      Event = "salesOrder.created"
	SalesOrderUpdated      Event = "salesOrder.updated"
	SalesInvoiceCreated    Event = "salesInvoice.created"
	SalesInvoicePosted     Event = "salesInvoice.posted"
	PurchaseOrderCreated   Event = "purchaseOrder.created"
	PurchaseInvoiceCreated Event = "purchaseInvoice.created"
	PaymentCreated         Event = "payment.created"
)

// Events returns every supported event.
func Events() []Event {
	return []Event{
		CustomerCreated, CustomerUpdated, CustomerDeleted,
		VendorCreated, VendorUpdated,
		ItemCreated, ItemUpdated,
		SalesOrderCreated, SalesOrderUpdated,
		SalesInvoiceCreated, SalesInvoicePosted,
		PurchaseOrderCreated, PurchaseInvoiceCreated,
		PaymentCreated,
	}
}

// Valid reports whether e is a supported event.
func (e Event) Valid() bool {
	for _, known := range Events() {
		if e == known {
			return true
		}
	}
	return false
}

var collections = map[string]string{
	"customer":        "customers",
	"vendor":          "vendors",
	"item":            "items",
	"salesOrder":      "salesOrders",
	"salesInvoice":    "salesInvoices",
	"purchaseOrder":   "purchaseOrders",
	"purchaseInvoice": "purchaseInvoices",
	"payment":         "customerPayments",
}

var changeTypes = map[string]string{
	"created": "created",
	"updated": "updated",
	"deleted": "deleted",
	"posted":  "updated",
}

// ResourceForEvent returns the API collection an event subscribes to.
// Unknown resources pass through unchanged.
func ResourceForEvent(event string) string {
	resource, _, _ := strings.Cut(event, ".")
	if collection, ok := collections[resource]; ok {
		return collection
	}
	return resource
}

// ChangeTypeForEvent returns the subscription change type for an event.
// Posting is reported by the API as an update; unknown actions default to
// "updated".
func ChangeTypeForEvent(event string) string {
	_, action, _ := strings.Cut(event, ".")
	if changeType, ok := changeTypes[action]; ok {
		return changeType
	}
	return "updated"
}
