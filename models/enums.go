package models

import (
	"errors"
	"strings"
)

type EventType string

const (
	EventTypeOrderRevenue        EventType = "OrderRevenue"
	EventTypeFee                 EventType = "Fee"
	EventTypeServiceFee          EventType = "ServiceFee"
	EventTypeRefund              EventType = "Refund"
	EventTypeDeferredTransaction EventType = "DeferredTransaction"
	EventTypeAdjustment          EventType = "Adjustment"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventTypeOrderRevenue, EventTypeFee, EventTypeServiceFee, EventTypeRefund,
		EventTypeDeferredTransaction, EventTypeAdjustment:
		return true
	}
	return false
}

// IsFee reports whether events of this type count towards fees.
func (t EventType) IsFee() bool {
	return t == EventTypeFee || t == EventTypeServiceFee
}

func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.TrimSpace(s))
	if !t.IsValid() {
		return "", errors.New("invalid event type")
	}
	return t, nil
}

type OrderStatus string

const (
	OrderStatusPending             OrderStatus = "Pending"
	OrderStatusUnshipped           OrderStatus = "Unshipped"
	OrderStatusPartiallyShipped    OrderStatus = "PartiallyShipped"
	OrderStatusShipped             OrderStatus = "Shipped"
	OrderStatusCanceled            OrderStatus = "Canceled"
	OrderStatusUnfulfillable       OrderStatus = "Unfulfillable"
	OrderStatusInvoiceUnconfirmed  OrderStatus = "InvoiceUnconfirmed"
	OrderStatusPendingAvailability OrderStatus = "PendingAvailability"
)

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusUnshipped, OrderStatusPartiallyShipped, OrderStatusShipped,
		OrderStatusCanceled, OrderStatusUnfulfillable, OrderStatusInvoiceUnconfirmed, OrderStatusPendingAvailability:
		return true
	}
	return false
}

// IsProvisional is true while Amazon has not finalized the order's pricing.
func (s OrderStatus) IsProvisional() bool {
	return s == OrderStatusPending || s == OrderStatusUnshipped
}

// SourceGeneration tags which SP-API report generation produced an event.
// It is set once at ingestion time.
type SourceGeneration string

const (
	SourceGenerationUnknown SourceGeneration = "UNKNOWN"
	SourceGenerationLegacy  SourceGeneration = "LEGACY"
	SourceGenerationCurrent SourceGeneration = "CURRENT"
)

func (g SourceGeneration) IsValid() bool {
	return g == SourceGenerationUnknown || g == SourceGenerationLegacy || g == SourceGenerationCurrent
}

type TransactionStatus string

const (
	TransactionStatusNone     TransactionStatus = ""
	TransactionStatusDeferred TransactionStatus = "DEFERRED"
	TransactionStatusReleased TransactionStatus = "RELEASED"
)

type FeeCategory string

const (
	FeeCategoryReferral       FeeCategory = "referral"
	FeeCategoryFbaFulfillment FeeCategory = "fba_fulfillment"
	FeeCategoryStorage        FeeCategory = "storage"
	FeeCategoryRemoval        FeeCategory = "removal"
	FeeCategoryShipping       FeeCategory = "shipping"
	FeeCategoryService        FeeCategory = "service"
	FeeCategoryAdvertising    FeeCategory = "advertising"
	FeeCategoryOther          FeeCategory = "other"
)

func (c FeeCategory) IsValid() bool {
	switch c {
	case FeeCategoryReferral, FeeCategoryFbaFulfillment, FeeCategoryStorage, FeeCategoryRemoval,
		FeeCategoryShipping, FeeCategoryService, FeeCategoryAdvertising, FeeCategoryOther:
		return true
	}
	return false
}
