package resources

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Sternrassler/bc-odata-client/pkg/client"
	"github.com/Sternrassler/bc-odata-client/pkg/odata"
	"github.com/Sternrassler/bc-odata-client/pkg/pagination"
)

// Resource names.
const (
	Company            = "company"
	Customer           = "customer"
	Vendor             = "vendor"
	Item               = "item"
	SalesOrder         = "salesOrder"
	SalesInvoice       = "salesInvoice"
	PurchaseOrder      = "purchaseOrder"
	PurchaseInvoice    = "purchaseInvoice"
	GeneralLedgerEntry = "generalLedgerEntry"
	JournalLine        = "journalLine"
	Payment            = "payment"
	Dimension          = "dimension"
)

// DefaultTable returns the handlers for every supported operation.
func DefaultTable() Table {
	t := Table{}

	t[Key{Company, "get"}] = getOne(unscoped("/companies(%s)", ParamCompanyID))
	t[Key{Company, "getAll"}] = getAll(unscoped("/companies"))

	entityOps(t, Customer, "customers", "customerId", namedBody(true))
	t[Key{Customer, "getFinancialDetails"}] = getOne(scoped("/customers(%s)/customerFinancialDetails", "customerId"))
	t[Key{Customer, "getDefaultDimensions"}] = list(scoped("/customers(%s)/defaultDimensions", "customerId"))
	t[Key{Customer, "setDefaultDimension"}] = create(scoped("/customers(%s)/defaultDimensions", "customerId"), defaultDimensionBody)
	pictureOps(t, Customer, "customers", "customerId")

	entityOps(t, Vendor, "vendors", "vendorId", namedBody(true))
	t[Key{Vendor, "getDefaultDimensions"}] = list(scoped("/vendors(%s)/defaultDimensions", "vendorId"))
	t[Key{Vendor, "getOpenBalance"}] = vendorOpenBalance
	pictureOps(t, Vendor, "vendors", "vendorId")

	entityOps(t, Item, "items", "itemId", namedBody(false))
	t[Key{Item, "getDefaultDimensions"}] = list(scoped("/items(%s)/defaultDimensions", "itemId"))
	t[Key{Item, "getItemVariants"}] = list(scoped("/items(%s)/itemVariants", "itemId"))
	t[Key{Item, "getInventory"}] = itemInventory
	pictureOps(t, Item, "items", "itemId")

	entityOps(t, SalesOrder, "salesOrders", "salesOrderId", documentBody("customerId", "orderDate"))
	lineOps(t, SalesOrder, "salesOrders", "salesOrderId", "salesOrderLines")
	t[Key{SalesOrder, "shipAndInvoice"}] = action(scoped("/salesOrders(%s)/Microsoft.NAV.shipAndInvoice", "salesOrderId"))
	t[Key{SalesOrder, "getShipments"}] = salesOrderDocuments("salesShipments")
	t[Key{SalesOrder, "getInvoices"}] = salesOrderDocuments("salesInvoices")

	entityOps(t, SalesInvoice, "salesInvoices", "salesInvoiceId", documentBody("customerId", "invoiceDate", "dueDate"))
	lineOps(t, SalesInvoice, "salesInvoices", "salesInvoiceId", "salesInvoiceLines")
	t[Key{SalesInvoice, "post"}] = action(scoped("/salesInvoices(%s)/Microsoft.NAV.post", "salesInvoiceId"))
	t[Key{SalesInvoice, "send"}] = action(scoped("/salesInvoices(%s)/Microsoft.NAV.send", "salesInvoiceId"))
	t[Key{SalesInvoice, "getPdf"}] = getOne(scoped("/salesInvoices(%s)/pdfDocument", "salesInvoiceId"))

	entityOps(t, PurchaseOrder, "purchaseOrders", "purchaseOrderId", documentBody("vendorId", "orderDate"))
	lineOps(t, PurchaseOrder, "purchaseOrders", "purchaseOrderId", "purchaseOrderLines")
	t[Key{PurchaseOrder, "receive"}] = action(scoped("/purchaseOrders(%s)/Microsoft.NAV.receive", "purchaseOrderId"))

	entityOps(t, PurchaseInvoice, "purchaseInvoices", "purchaseInvoiceId", documentBody("vendorId", "invoiceDate", "dueDate"))
	lineOps(t, PurchaseInvoice, "purchaseInvoices", "purchaseInvoiceId", "purchaseInvoiceLines")
	t[Key{PurchaseInvoice, "post"}] = action(scoped("/purchaseInvoices(%s)/Microsoft.NAV.post", "purchaseInvoiceId"))

	t[Key{GeneralLedgerEntry, "get"}] = getOne(scoped("/generalLedgerEntries(%s)", "entryId"))
	t[Key{GeneralLedgerEntry, "getAll"}] = getAll(scoped("/generalLedgerEntries"))
	t[Key{GeneralLedgerEntry, "getByAccount"}] = getAllWith(scoped("/generalLedgerEntries"), listing{
		filtersKey: ParamFilters,
		optionsKey: ParamOptions,
		inject:     injectGUID("accountId"),
	})

	entityOps(t, JournalLine, "journalLines", "journalLineId", journalLineBody)
	t[Key{JournalLine, "getAll"}] = getAllWith(scoped("/journalLines"), listing{
		filtersKey: ParamFilters,
		optionsKey: ParamOptions,
		inject:     injectString("journalDisplayName"),
	})
	t[Key{JournalLine, "post"}] = postJournal

	entityOps(t, Payment, "customerPayments", "paymentId", paymentBody)
	t[Key{Payment, "getAll"}] = getAllWith(scoped("/customerPayments"), listing{
		filtersKey: ParamFilters,
		optionsKey: ParamOptions,
		inject:     injectString("journalDisplayName"),
	})
	t[Key{Payment, "post"}] = postPayment

	t[Key{Dimension, "get"}] = getOne(scoped("/dimensions(%s)", "dimensionId"))
	t[Key{Dimension, "getAll"}] = getAll(scoped("/dimensions"))
	t[Key{Dimension, "getValues"}] = getAllWith(scoped("/dimensions(%s)/dimensionValues", "dimensionId"), listing{
		filtersKey: "valueFilters",
		optionsKey: "valueOptions",
	})
	t[Key{Dimension, "getDefaultDimensions"}] = entityDefaultDimensions

	return t
}

// injectString sets filter field to the required text parameter of the same name.
func injectString(field string) func(Params, *odata.FilterSet) error {
	return func(p Params, fs *odata.FilterSet) error {
		v, err := p.Require(field)
		if err != nil {
			return err
		}
		fs.Set(field, odata.StringValue(v))
		return nil
	}
}

// injectGUID sets filter field to the GUID parameter of the same name.
func injectGUID(field string) func(Params, *odata.FilterSet) error {
	return func(p Params, fs *odata.FilterSet) error {
		v, err := p.GUID(field)
		if err != nil {
			return err
		}
		fs.Set(field, odata.StringValue(v))
		return nil
	}
}

const defaultPostingValidation = "No Posting"

func defaultDimensionBody(p Params) (map[string]any, error) {
	customerID, err := p.GUID("customerId")
	if err != nil {
		return nil, err
	}
	dimensionID, err := p.GUID("dimensionId")
	if err != nil {
		return nil, err
	}
	valueID, err := p.GUID("dimensionValueId")
	if err != nil {
		return nil, err
	}

	posting := p.String("valuePosting")
	if posting == "" {
		posting = defaultPostingValidation
	}
	return map[string]any{
		"parentId":          customerID,
		"dimensionId":       dimensionID,
		"dimensionValueId":  valueID,
		"postingValidation": posting,
	}, nil
}

func journalLineBody(p Params) (map[string]any, error) {
	journal, err := p.Require("journalDisplayName")
	if err != nil {
		return nil, err
	}
	accountType, err := p.Require("accountType")
	if err != nil {
		return nil, err
	}
	accountID, err := p.GUID("accountId")
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"journalDisplayName": journal,
		"accountType":        accountType,
		"accountId":          accountID,
		"postingDate":        odata.FormatDate(p.String("postingDate")),
		"amount":             p["amount"],
	}
	merge(body, p.Map(ParamAdditionalFields))
	formatDates(body, "postingDate")
	return body, nil
}

func paymentBody(p Params) (map[string]any, error) {
	journal, err := p.Require("journalDisplayName")
	if err != nil {
		return nil, err
	}
	customerID, err := p.GUID("customerId")
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"journalDisplayName": journal,
		"customerId":         customerID,
		"postingDate":        odata.FormatDate(p.String("postingDate")),
		"amount":             p["amount"],
	}
	merge(body, p.Map(ParamAdditionalFields))
	formatDates(body, "postingDate")
	return body, nil
}

func vendorOpenBalance(ctx context.Context, env *Env, p Params) (any, error) {
	path, err := scoped("/vendors(%s)", "vendorId")(env, p)
	if err != nil {
		return nil, err
	}
	vendor, err := env.API.RequestJSON(ctx, http.MethodGet, path, nil,
		odata.QueryParameters{odata.ParamSelect: "balance,balanceDue"}, nil)
	if err != nil {
		return nil, err
	}

	vendorID, _ := p.GUID("vendorId")
	return pagination.Record{
		"vendorId":   vendorID,
		"balance":    vendor["balance"],
		"balanceDue": vendor["balanceDue"],
	}, nil
}

func itemInventory(ctx context.Context, env *Env, p Params) (any, error) {
	path, err := scoped("/items(%s)", "itemId")(env, p)
	if err != nil {
		return nil, err
	}
	return env.API.RequestJSON(ctx, http.MethodGet, path, nil,
		odata.QueryParameters{odata.ParamSelect: "id,number,displayName,inventory"}, nil)
}

// salesOrderDocuments lists the documents of collection created from a
// sales order, matched by the order's number.
func salesOrderDocuments(collection string) Handler {
	return func(ctx context.Context, env *Env, p Params) (any, error) {
		company, err := companyID(env, p)
		if err != nil {
			return nil, err
		}
		orderID, err := p.GUID("salesOrderId")
		if err != nil {
			return nil, err
		}

		order, err := env.API.RequestJSON(ctx, http.MethodGet,
			client.CompanyEndpoint(company, "/salesOrders("+orderID+")"), nil,
			odata.QueryParameters{odata.ParamSelect: "number"}, nil)
		if err != nil {
			return nil, err
		}

		filter := odata.BuildFilterExpression("orderNumber", odata.StringValue(Params(order).String("number")), odata.OpEq)
		page, err := env.API.Request(ctx, http.MethodGet,
			client.CompanyEndpoint(company, "/"+collection), nil,
			odata.QueryParameters{odata.ParamFilter: filter})
		if err != nil {
			return nil, err
		}
		return page.Records(), nil
	}
}

// findJournal returns the id of the first journal in collection whose
// displayName equals name.
func findJournal(ctx context.Context, env *Env, company, collection, name string) (string, error) {
	filter := odata.BuildFilterExpression("displayName", odata.StringValue(name), odata.OpEq)
	page, err := env.API.Request(ctx, http.MethodGet,
		client.CompanyEndpoint(company, "/"+collection), nil,
		odata.QueryParameters{odata.ParamFilter: filter})
	if err != nil {
		return "", err
	}

	records := page.Records()
	if len(records) == 0 {
		return "", fmt.Errorf("%w: %s %q", ErrJournalNotFound, collection, name)
	}
	return Params(records[0]).String("id"), nil
}

func postJournal(ctx context.Context, env *Env, p Params) (any, error) {
	company, err := companyID(env, p)
	if err != nil {
		return nil, err
	}
	name, err := p.Require("journalDisplayName")
	if err != nil {
		return nil, err
	}

	journalID, err := findJournal(ctx, env, company, "journals", name)
	if err != nil {
		return nil, err
	}
	return env.API.RequestJSON(ctx, http.MethodPost,
		client.CompanyEndpoint(company, "/journals("+journalID+")/Microsoft.NAV.post"), nil, nil, nil)
}

func postPayment(ctx context.Context, env *Env, p Params) (any, error) {
	company, err := companyID(env, p)
	if err != nil {
		return nil, err
	}
	paymentID, err := p.GUID("paymentId")
	if err != nil {
		return nil, err
	}

	payment, err := env.API.RequestJSON(ctx, http.MethodGet,
		client.CompanyEndpoint(company, "/customerPayments("+paymentID+")"), nil, nil, nil)
	if err != nil {
		return nil, err
	}

	journalID, err := findJournal(ctx, env, company, "customerPaymentJournals", Params(payment).String("journalDisplayName"))
	if err != nil {
		return nil, err
	}
	return env.API.RequestJSON(ctx, http.MethodPost,
		client.CompanyEndpoint(company, "/customerPaymentJournals("+journalID+")/Microsoft.NAV.post"), nil, nil, nil)
}

// entityPlurals maps dimension owners to their collection names; anything
// else is treated as an employee.
var entityPlurals = map[string]string{
	"customer": "customers",
	"vendor":   "vendors",
	"item":     "items",
}

func entityDefaultDimensions(ctx context.Context, env *Env, p Params) (any, error) {
	plural, ok := entityPlurals[p.String("entityType")]
	if !ok {
		plural = "employees"
	}
	return list(scoped("/"+plural+"(%s)/defaultDimensions", "entityId"))(ctx, env, p)
}
