package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type InvoiceData struct {
	IssuerName    string
	InvoiceNumber string
	Status        string
	IssueDate     string
	DueDate       string
	PaidAt        string
	ServicePeriod string

	BillToName  string
	BillToLevel string
	Beneficiary string

	PaymentChannel string
	BankDetails    string

	Items []InvoiceItem

	Subtotal  string
	Discount  string
	Total     string
	AmountDue string
}

type InvoiceItem struct {
	Description string
	Qty         int
	UnitPrice   string
	Amount      string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateInvoice(ctx context.Context, invoice InvoiceData) (io.Reader, error) {
	if strings.TrimSpace(invoice.InvoiceNumber) == "" {
		return nil, fmt.Errorf("invoice number is required")
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	title := "Invoice"
	if invoice.PaidAt != "" {
		title = "Receipt"
	}
	m.AddRow(12,
		text.NewCol(8, title, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, invoice.Status, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	meta := []string{
		"Invoice number: " + invoice.InvoiceNumber,
		"Date of issue: " + invoice.IssueDate,
		"Date due: " + invoice.DueDate,
	}
	if invoice.PaidAt != "" {
		meta = append(meta, "Date paid: "+invoice.PaidAt)
	}
	if invoice.ServicePeriod != "" {
		meta = append(meta, "Service period: "+invoice.ServicePeriod)
	}
	metaCol := col.New(6)
	for i, line := range meta {
		metaCol.Add(text.New(line, props.Text{Top: float64(i * 4)}))
	}
	m.AddRow(24, metaCol, col.New(6))

	billTo := col.New(6).Add(
		text.New("Bill to", props.Text{Style: fontstyle.Bold}),
		text.New(invoice.BillToName, props.Text{Top: 5}),
		text.New(invoice.BillToLevel, props.Text{Top: 9}),
	)
	if invoice.Beneficiary != "" && invoice.Beneficiary != invoice.BillToName {
		billTo.Add(text.New("For: "+invoice.Beneficiary, props.Text{Top: 13}))
	}
	m.AddRow(25,
		col.New(6).Add(
			text.New(invoice.IssuerName, props.Text{Style: fontstyle.Bold}),
		),
		billTo,
	)

	m.AddRow(15,
		text.NewCol(12, invoice.AmountDue+" due "+invoice.DueDate, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	if invoice.BankDetails != "" {
		m.AddRow(20,
			text.NewCol(12, invoice.BankDetails, props.Text{
				Size: 9,
				Top:  0,
			}),
		)
	}

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, item := range invoice.Items {
		m.AddRow(12,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, strconv.Itoa(item.Qty), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	totals := [][2]string{{"Subtotal", invoice.Subtotal}}
	if invoice.Discount != "" {
		totals = append(totals, [2]string{"Discount", invoice.Discount})
	}
	totals = append(totals, [2]string{"Total", invoice.Total})
	for _, row := range totals {
		m.AddRow(10,
			col.New(8),
			text.NewCol(2, row[0], props.Text{Size: 9}),
			text.NewCol(2, row[1], props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Amount due", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, invoice.AmountDue, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if invoice.PaymentChannel != "" {
		m.AddRow(10,
			text.NewCol(12, "Payment channel: "+invoice.PaymentChannel, props.Text{Size: 8, Top: 4}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
