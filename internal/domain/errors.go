package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers that need to decide how to react
// (retry, self-correct, report) without inspecting messages.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindValidation          Kind = "validation"
	KindForbidden           Kind = "forbidden"
	KindConflict            Kind = "conflict"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindInternal            Kind = "internal"
)

// Error is the error type returned across package boundaries. Two errors
// match under errors.Is when their Kind and Code are equal, so the sentinels
// below can be compared against detailed instances built by the helpers.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

var (
	ErrCartNotFound      = &Error{Kind: KindNotFound, Code: "cart_not_found", Message: "cart not found"}
	ErrItemNotFound      = &Error{Kind: KindNotFound, Code: "item_not_found", Message: "item not found in cart"}
	ErrOrderNotFound     = &Error{Kind: KindNotFound, Code: "order_not_found", Message: "order not found"}
	ErrOrderItemNotFound = &Error{Kind: KindNotFound, Code: "order_item_not_found", Message: "order item not found"}
	ErrProductNotFound   = &Error{Kind: KindNotFound, Code: "product_not_found", Message: "product not found"}
	ErrVariantNotFound   = &Error{Kind: KindNotFound, Code: "variant_not_found", Message: "variant not found"}

	ErrInvalidInput       = &Error{Kind: KindValidation, Code: "invalid_input", Message: "invalid input"}
	ErrInvalidStep        = &Error{Kind: KindValidation, Code: "invalid_step", Message: "invalid fulfillment step"}
	ErrMissingMetadata    = &Error{Kind: KindValidation, Code: "missing_metadata", Message: "missing required step metadata"}
	ErrInvalidOrderStatus = &Error{Kind: KindValidation, Code: "invalid_order_status", Message: "invalid order status"}
	ErrEmptyCart          = &Error{Kind: KindValidation, Code: "empty_cart", Message: "cart is empty, nothing to checkout"}

	// Both payment account errors mean the tenant cannot take payments yet;
	// they differ because the fix differs (connect an account vs. finish setup).
	ErrPaymentAccountNotConfigured   = &Error{Kind: KindValidation, Code: "payment_account_not_configured", Message: "payment account is not configured for this environment"}
	ErrPaymentAccountSetupIncomplete = &Error{Kind: KindValidation, Code: "payment_account_setup_incomplete", Message: "payment account setup is incomplete"}

	// ErrPaymentRejected means the provider refused the session request itself;
	// retrying the same request will not help.
	ErrPaymentRejected = &Error{Kind: KindValidation, Code: "payment_rejected", Message: "payment provider rejected the checkout session"}

	ErrForbidden = &Error{Kind: KindForbidden, Code: "forbidden", Message: "insufficient permission for this operation"}
	ErrConflict  = &Error{Kind: KindConflict, Code: "conflict", Message: "concurrent modification, retry the request"}

	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable, Code: "upstream_unavailable", Message: "upstream service unavailable"}
	ErrInternal            = &Error{Kind: KindInternal, Code: "internal", Message: "internal error"}
)

// KindOf reports the Kind of err, defaulting to KindInternal for errors that
// did not originate in this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// NewValidationError returns an invalid_input error with a caller-facing message.
func NewValidationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Code: ErrInvalidInput.Code, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidStepError names the rejected step and the steps that would have been accepted.
func NewInvalidStepError(stepID string, validIDs []string) error {
	valid := "none"
	if len(validIDs) > 0 {
		valid = strings.Join(validIDs, ", ")
	}
	return &Error{
		Kind:    KindValidation,
		Code:    ErrInvalidStep.Code,
		Message: fmt.Sprintf("step %q is not part of this product's pipeline (valid steps: %s)", stepID, valid),
		Details: map[string]any{
			"step_id":        stepID,
			"valid_step_ids": validIDs,
		},
	}
}

func NewMissingMetadataError(step StepDefinition, missing []string) error {
	return &Error{
		Kind:    KindValidation,
		Code:    ErrMissingMetadata.Code,
		Message: fmt.Sprintf("step %q requires metadata: %s", step.Label, strings.Join(missing, ", ")),
		Details: map[string]any{
			"step_id":        step.ID,
			"step_label":     step.Label,
			"missing_fields": missing,
		},
	}
}

// PaymentRejected wraps a provider refusal.
func PaymentRejected(err error) error {
	return &Error{
		Kind:    KindValidation,
		Code:    ErrPaymentRejected.Code,
		Message: ErrPaymentRejected.Message,
		Err:     err,
	}
}

// Upstream wraps a failed call to the catalog or payment provider.
func Upstream(what string, err error) error {
	return &Error{
		Kind:    KindUpstreamUnavailable,
		Code:    ErrUpstreamUnavailable.Code,
		Message: what + " unavailable",
		Err:     err,
	}
}
