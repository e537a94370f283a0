// Package manual implements bank transfer payments confirmed by an admin.
package manual

import (
	"context"
	"net/http"
	"strings"

	"github.com/smallbiznis/rukun/internal/config"
	paymentdomain "github.com/smallbiznis/rukun/internal/payment/domain"
)

type Adapter struct {
	bankName      string
	accountNumber string
	accountHolder string
}

func New(cfg config.Config) *Adapter {
	return &Adapter{
		bankName:      strings.TrimSpace(cfg.Payment.ManualBankName),
		accountNumber: strings.TrimSpace(cfg.Payment.ManualAccountNumber),
		accountHolder: strings.TrimSpace(cfg.Payment.ManualAccountHolder),
	}
}

func (a *Adapter) Channel() paymentdomain.Channel {
	return paymentdomain.ChannelManual
}

// Charge only describes the transfer. The invoice stays unpaid until an admin confirms it.
func (a *Adapter) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error) {
	return paymentdomain.ChargeResult{
		Channel: paymentdomain.ChannelManual,
		Mode:    paymentdomain.ModeManual,
		Outcome: paymentdomain.OutcomePending,
		Instruction: paymentdomain.Instruction{
			BankName:      a.bankName,
			AccountNumber: a.accountNumber,
			AccountHolder: a.accountHolder,
			Reference:     req.InvoiceNumber,
			Amount:        req.Amount,
			Currency:      req.Currency,
		},
	}, nil
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	return paymentdomain.ErrCallbackNotAllowed
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Event, error) {
	return nil, paymentdomain.ErrCallbackNotAllowed
}
