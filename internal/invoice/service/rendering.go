package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rukun/internal/authorization"
	invoicedomain "github.com/smallbiznis/rukun/internal/invoice/domain"
	invoiceformat "github.com/smallbiznis/rukun/internal/invoice/format"
	"github.com/smallbiznis/rukun/internal/providers/pdf"
	"github.com/smallbiznis/rukun/internal/tenancy"
	tenantdomain "github.com/smallbiznis/rukun/internal/tenant/domain"
	"go.uber.org/zap"
)

const (
	issuerName = "Rukun"
	dateLayout = "02 Jan 2006"
)

// Download renders the invoice, or its receipt once paid, as a PDF.
func (s *Service) Download(ctx context.Context, principal tenancy.Principal, id snowflake.ID) (invoicedomain.Document, error) {
	invoice, err := s.load(ctx, id)
	if err != nil {
		return invoicedomain.Document{}, err
	}
	if err := s.gate.AuthorizeInvoice(ctx, principal, authorization.InvoiceView, invoice.TenantID); err != nil {
		return invoicedomain.Document{}, err
	}

	owner, err := s.tenantSvc.Get(ctx, invoice.TenantID)
	if err != nil {
		return invoicedomain.Document{}, err
	}
	beneficiary := owner
	if invoice.BeneficiaryTenantID != invoice.TenantID {
		beneficiary, err = s.tenantSvc.Get(ctx, invoice.BeneficiaryTenantID)
		if err != nil {
			return invoicedomain.Document{}, err
		}
	}

	body, err := s.pdf.GenerateInvoice(ctx, s.invoiceData(invoice, owner, beneficiary))
	if err != nil {
		s.log.Error("failed to render invoice",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Error(err),
		)
		return invoicedomain.Document{}, err
	}
	return invoicedomain.Document{
		Filename:    fmt.Sprintf("%s.pdf", invoice.Number),
		ContentType: "application/pdf",
		Body:        body,
	}, nil
}

func (s *Service) invoiceData(invoice *invoicedomain.Invoice, owner, beneficiary *tenantdomain.Tenant) pdf.InvoiceData {
	amount := func(v int64) string { return invoiceformat.FormatAmount(invoice.Currency, v) }

	data := pdf.InvoiceData{
		IssuerName:    issuerName,
		InvoiceNumber: invoice.Number,
		Status:        string(invoice.Status),
		IssueDate:     invoice.CreatedAt.Format(dateLayout),
		DueDate:       invoice.DueDate.Format(dateLayout),
		BillToName:    owner.Name,
		BillToLevel:   string(owner.Level),
		Items: []pdf.InvoiceItem{{
			Description: invoice.PlanName,
			Qty:         1,
			UnitPrice:   amount(invoice.Subtotal),
			Amount:      amount(invoice.Subtotal),
		}},
		Subtotal:  amount(invoice.Subtotal),
		Discount:  amount(invoice.Discount),
		Total:     amount(invoice.Amount),
		AmountDue: amount(invoice.Amount),
	}
	if invoice.IssuedAt != nil {
		data.IssueDate = invoice.IssuedAt.Format(dateLayout)
	}
	if beneficiary.ID != owner.ID {
		data.Beneficiary = beneficiary.Name
	}
	if invoice.PaymentChannel != nil {
		data.PaymentChannel = *invoice.PaymentChannel
	}
	if invoice.PaidAt != nil {
		data.PaidAt = invoice.PaidAt.Format(dateLayout)
		data.AmountDue = amount(0)
	}
	if bank := s.bankDetails(); bank != "" && invoice.PaidAt == nil {
		data.BankDetails = bank
	}
	return data
}

func (s *Service) bankDetails() string {
	if s.bankName == "" && s.bankAccount == "" {
		return ""
	}
	return fmt.Sprintf("%s %s a.n. %s", s.bankName, s.bankAccount, s.bankHolder)
}
