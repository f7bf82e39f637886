package goDeliver

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventCheckout       = "checkout"
	auditEventOTPIssued      = "otp_issued"
	auditEventExchangeSecret = "exchange_secret"
	auditEventFetch          = "fetch"
	auditEventStatusCheck    = "status_check"
	auditEventSweep          = "credential_sweep"
)

// AuditErrorCode defines a public type used by goDeliver APIs.
//
// AuditErrorCode values are the stable error labels carried in [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrUnknownAccount AuditErrorCode = "unknown_account"
	auditErrEmptyCart      AuditErrorCode = "empty_cart"
	auditErrInvalidCart    AuditErrorCode = "invalid_cart"
	auditErrRenderFailed   AuditErrorCode = "render_failed"
	auditErrPurchaseRecord AuditErrorCode = "purchase_record_failed"
	auditErrDenied         AuditErrorCode = "denied"
	auditErrFileNotFound   AuditErrorCode = "file_not_found"
	auditErrUnavailable    AuditErrorCode = "backend_unavailable"
	auditErrEngineNotReady AuditErrorCode = "engine_not_ready"
	auditErrInternal       AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	account string,
	item string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Account:   account,
		Item:      item,
		RequestID: RequestIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnknownAccount):
		return auditErrUnknownAccount
	case errors.Is(err, ErrEmptyCart):
		return auditErrEmptyCart
	case errors.Is(err, ErrInvalidCart):
		return auditErrInvalidCart
	case errors.Is(err, ErrRenderFailed):
		return auditErrRenderFailed
	case errors.Is(err, ErrPurchaseRecordFailed):
		return auditErrPurchaseRecord
	case errors.Is(err, ErrDenied):
		return auditErrDenied
	case errors.Is(err, ErrFileNotFound):
		return auditErrFileNotFound
	case errors.Is(err, ErrCredentialUnavailable),
		errors.Is(err, ErrAccountLookupFailed):
		return auditErrUnavailable
	case errors.Is(err, ErrEngineNotReady):
		return auditErrEngineNotReady
	default:
		return auditErrInternal
	}
}
