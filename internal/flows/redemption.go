package flows

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RedeemedToken is the download token handed back for a correct secret.
type RedeemedToken struct {
	TokenID   string
	ExpiresAt time.Time
}

// ConsumedToken is the purchase a spent token authorized.
type ConsumedToken struct {
	Account string
	Item    string
}

type Download struct {
	Account string
	Item    string
	Path    string
}

type RedemptionMetrics struct {
	OTPRedeemed   int
	OTPDenied     int
	TokenConsumed int
	TokenDenied   int
	TokenExpired  int
	StatusCheck   int
}

type RedemptionEvents struct {
	ExchangeSecret string
	Fetch          string
	StatusCheck    string
}

type RedemptionErrors struct {
	EngineNotReady        error
	Denied                error
	FileNotFound          error
	CredentialUnavailable error
}

type RedemptionDeps struct {
	RedeemOTP       func(context.Context, string, string, string) (RedeemedToken, error)
	ConsumeToken    func(context.Context, string) (ConsumedToken, error)
	HasPendingOTP   func(context.Context, string, string) (bool, error)
	ResolveFilePath func(context.Context, string) (string, error)
	FileExists      func(string) bool
	ValidTokenID    func(string) bool

	// DenialReason classifies a store error for audit metadata only.
	DenialReason func(error) string
	IsExpired    func(error) bool

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics RedemptionMetrics
	Events  RedemptionEvents
	Errors  RedemptionErrors
}

// RunExchangeSecret trades a correct OTP for a fresh download token. Any
// failure is reported as Errors.Denied.
func RunExchangeSecret(ctx context.Context, account, item, secret string, deps RedemptionDeps) (RedeemedToken, error) {
	normalizeRedemptionDeps(&deps)

	if deps.RedeemOTP == nil {
		return RedeemedToken{}, deps.Errors.EngineNotReady
	}

	deny := func(reason string) (RedeemedToken, error) {
		deps.MetricInc(deps.Metrics.OTPDenied)
		deps.EmitAudit(ctx, deps.Events.ExchangeSecret, false, account, item, deps.Errors.Denied, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return RedeemedToken{}, deps.Errors.Denied
	}

	if account == "" || item == "" || secret == "" {
		return deny("missing_input")
	}

	token, err := deps.RedeemOTP(ctx, account, item, secret)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return RedeemedToken{}, err
		}
		return deny(deps.DenialReason(err))
	}

	deps.MetricInc(deps.Metrics.OTPRedeemed)
	deps.EmitAudit(ctx, deps.Events.ExchangeSecret, true, account, item, nil, nil)

	return token, nil
}

// RunFetch spends a download token and resolves the file it grants. The token
// is gone once the store accepts it, even when the file cannot be found.
func RunFetch(ctx context.Context, tokenID string, deps RedemptionDeps) (Download, error) {
	normalizeRedemptionDeps(&deps)

	if deps.ConsumeToken == nil || deps.ResolveFilePath == nil {
		return Download{}, deps.Errors.EngineNotReady
	}

	deny := func(metric int, reason string) (Download, error) {
		deps.MetricInc(metric)
		deps.EmitAudit(ctx, deps.Events.Fetch, false, "", "", deps.Errors.Denied, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return Download{}, deps.Errors.Denied
	}

	if !deps.ValidTokenID(tokenID) {
		return deny(deps.Metrics.TokenDenied, "malformed_token")
	}

	consumed, err := deps.ConsumeToken(ctx, tokenID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Download{}, err
		}
		if deps.IsExpired(err) {
			return deny(deps.Metrics.TokenExpired, deps.DenialReason(err))
		}
		return deny(deps.Metrics.TokenDenied, deps.DenialReason(err))
	}
	deps.MetricInc(deps.Metrics.TokenConsumed)

	path, err := deps.ResolveFilePath(ctx, consumed.Item)
	if err != nil || path == "" || !deps.FileExists(path) {
		deps.EmitAudit(ctx, deps.Events.Fetch, false, consumed.Account, consumed.Item, deps.Errors.FileNotFound, func() map[string]string {
			return map[string]string{
				"reason": "file_not_found",
			}
		})
		if err != nil {
			return Download{}, fmt.Errorf("%w: %v", deps.Errors.FileNotFound, err)
		}
		return Download{}, deps.Errors.FileNotFound
	}

	deps.EmitAudit(ctx, deps.Events.Fetch, true, consumed.Account, consumed.Item, nil, nil)

	return Download{
		Account: consumed.Account,
		Item:    consumed.Item,
		Path:    path,
	}, nil
}

// RunStatusCheck reports whether an unexpired OTP is pending for the pair.
// It never changes store state.
func RunStatusCheck(ctx context.Context, account, item string, deps RedemptionDeps) (bool, error) {
	normalizeRedemptionDeps(&deps)

	if deps.HasPendingOTP == nil {
		return false, deps.Errors.EngineNotReady
	}

	deps.MetricInc(deps.Metrics.StatusCheck)
	if account == "" || item == "" {
		return false, nil
	}

	pending, err := deps.HasPendingOTP(ctx, account, item)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		deps.EmitAudit(ctx, deps.Events.StatusCheck, false, account, item, err, nil)
		return false, fmt.Errorf("%w: %v", deps.Errors.CredentialUnavailable, err)
	}

	return pending, nil
}

func normalizeRedemptionDeps(deps *RedemptionDeps) {
	if deps.FileExists == nil {
		deps.FileExists = func(string) bool { return true }
	}
	if deps.ValidTokenID == nil {
		deps.ValidTokenID = func(id string) bool { return id != "" }
	}
	if deps.DenialReason == nil {
		deps.DenialReason = func(error) string { return "denied" }
	}
	if deps.IsExpired == nil {
		deps.IsExpired = func(error) bool { return false }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}
