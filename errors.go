package goDeliver

import "errors"

var (
	// ErrUnknownAccount is returned by Checkout when the account directory has no such purchaser.
	ErrUnknownAccount = errors.New("unknown account")
	// ErrAccountLookupFailed is returned by Checkout when the account directory itself fails.
	ErrAccountLookupFailed = errors.New("account lookup failed")
	// ErrEmptyCart is returned by Checkout for a cart with no lines.
	ErrEmptyCart = errors.New("empty cart")
	// ErrInvalidCart is returned by Checkout for a line with a blank item, a quantity below one or a negative price.
	ErrInvalidCart = errors.New("invalid cart line")
	// ErrRenderFailed is returned by Checkout when the invoice could not be rendered or persisted.
	ErrRenderFailed = errors.New("invoice render failed")
	// ErrPurchaseRecordFailed is returned by Checkout when the purchase ledger rejects the append.
	ErrPurchaseRecordFailed = errors.New("purchase record failed")
	// ErrCredentialUnavailable is returned when the credential store backend cannot be reached.
	ErrCredentialUnavailable = errors.New("credential store unavailable")
	// ErrDenied is the only error a redemption caller sees for a wrong, spent, unknown or expired credential.
	ErrDenied = errors.New("invalid or expired")
	// ErrFileNotFound is returned by Fetch when a spent token names an item whose file is gone.
	ErrFileNotFound = errors.New("file not found")
	// ErrEngineNotReady is returned when the Engine was not built with the collaborators an operation needs.
	ErrEngineNotReady = errors.New("engine not ready")
)
