package httpapi

import (
	"context"
	"errors"
	"os"

	goDeliver "github.com/MrEthical07/goDeliver"
	"github.com/MrEthical07/goDeliver/jwt"
)

type stubEngine struct{}

func (stubEngine) Checkout(context.Context, string, []goDeliver.LineItem) (*goDeliver.CheckoutResult, error) {
	return nil, goDeliver.ErrEngineNotReady
}

func (stubEngine) ExchangeSecret(context.Context, string, string, string) (*goDeliver.DownloadToken, error) {
	return nil, goDeliver.ErrDenied
}

func (stubEngine) Fetch(context.Context, string) (*goDeliver.Download, error) {
	return nil, goDeliver.ErrDenied
}

func (stubEngine) StatusCheck(context.Context, string, string) (bool, error) {
	return false, nil
}

type stubInvoices struct{}

func (stubInvoices) Open(string) (*os.File, error) { return nil, errors.New("no invoices") }

type stubTokens struct{}

func (stubTokens) CreateAdmin(string) (string, error)          { return "", errors.New("disabled") }
func (stubTokens) ParseAdmin(string) (*jwt.AdminClaims, error) { return nil, errors.New("disabled") }
