package goDeliver

import (
	"context"
	"errors"
	"os"

	"github.com/MrEthical07/goDeliver/internal"
	internalflows "github.com/MrEthical07/goDeliver/internal/flows"
	"github.com/MrEthical07/goDeliver/internal/stores"
)

// ExchangeSecret describes the exchangesecret operation and its observable behavior.
//
// ExchangeSecret consumes the OTP issued for (accountID, item) when secret
// matches it and mints a download token valid for five minutes. Every failure
// to match, including a missing or expired OTP, is reported as ErrDenied.
func (e *Engine) ExchangeSecret(ctx context.Context, accountID, item, secret string) (*DownloadToken, error) {
	token, err := internalflows.RunExchangeSecret(ctx, accountID, item, secret, e.redemptionFlowDeps())
	if err != nil {
		return nil, err
	}
	return &DownloadToken{TokenID: token.TokenID, ExpiresAt: token.ExpiresAt}, nil
}

// Fetch describes the fetch operation and its observable behavior.
//
// Fetch spends tokenID and returns the file it grants. An unknown, spent or
// expired token yields ErrDenied. The token is spent even when Fetch then
// returns ErrFileNotFound.
func (e *Engine) Fetch(ctx context.Context, tokenID string) (*Download, error) {
	dl, err := internalflows.RunFetch(ctx, tokenID, e.redemptionFlowDeps())
	if err != nil {
		return nil, err
	}
	return &Download{Account: dl.Account, Item: dl.Item, Path: dl.Path}, nil
}

// StatusCheck reports whether an unexpired OTP is pending for the pair. It
// never consumes or deletes anything.
func (e *Engine) StatusCheck(ctx context.Context, accountID, item string) (bool, error) {
	return internalflows.RunStatusCheck(ctx, accountID, item, e.redemptionFlowDeps())
}

func (e *Engine) redemptionFlowDeps() internalflows.RedemptionDeps {
	deps := internalflows.RedemptionDeps{
		FileExists:   fileExists,
		ValidTokenID: internal.ValidTokenID,
		DenialReason: denialReason,
		IsExpired: func(err error) bool {
			return errors.Is(err, stores.ErrTokenExpired)
		},
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.RedemptionMetrics{
			OTPRedeemed:   int(MetricOTPRedeemed),
			OTPDenied:     int(MetricOTPDenied),
			TokenConsumed: int(MetricTokenConsumed),
			TokenDenied:   int(MetricTokenDenied),
			TokenExpired:  int(MetricTokenExpired),
			StatusCheck:   int(MetricStatusCheck),
		},
		Events: internalflows.RedemptionEvents{
			ExchangeSecret: auditEventExchangeSecret,
			Fetch:          auditEventFetch,
			StatusCheck:    auditEventStatusCheck,
		},
		Errors: internalflows.RedemptionErrors{
			EngineNotReady:        ErrEngineNotReady,
			Denied:                ErrDenied,
			FileNotFound:          ErrFileNotFound,
			CredentialUnavailable: ErrCredentialUnavailable,
		},
	}

	if e == nil {
		return deps
	}

	if e.store != nil {
		deps.RedeemOTP = func(ctx context.Context, account, item, secret string) (internalflows.RedeemedToken, error) {
			token, err := e.store.RedeemOTP(ctx, stores.OTPKey{Account: account, Item: item}, secret)
			if err != nil {
				return internalflows.RedeemedToken{}, err
			}
			return internalflows.RedeemedToken{TokenID: token.ID, ExpiresAt: token.ExpiresAt}, nil
		}
		deps.ConsumeToken = func(ctx context.Context, tokenID string) (internalflows.ConsumedToken, error) {
			token, err := e.store.ConsumeToken(ctx, tokenID)
			if err != nil {
				return internalflows.ConsumedToken{}, err
			}
			return internalflows.ConsumedToken{Account: token.Account, Item: token.Item}, nil
		}
		deps.HasPendingOTP = func(ctx context.Context, account, item string) (bool, error) {
			return e.store.HasPendingOTP(ctx, stores.OTPKey{Account: account, Item: item})
		}
	}
	if e.files != nil {
		deps.ResolveFilePath = e.files.ResolveFilePath
	}

	return deps
}

func denialReason(err error) string {
	switch {
	case errors.Is(err, stores.ErrOTPNotFound):
		return "otp_not_found"
	case errors.Is(err, stores.ErrOTPMismatch):
		return "otp_mismatch"
	case errors.Is(err, stores.ErrTokenNotFound):
		return "token_not_found"
	case errors.Is(err, stores.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, stores.ErrContention):
		return "store_contention"
	case errors.Is(err, stores.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
