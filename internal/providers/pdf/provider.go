// Package pdf renders invoices and receipts as PDF documents.
package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

type Provider interface {
	// GenerateInvoice renders an invoice, or a receipt when data.PaidAt is set.
	GenerateInvoice(ctx context.Context, data InvoiceData) (io.Reader, error)
}

var Module = fx.Module("pdf",
	fx.Provide(New),
)
