// Package domain defines payment channels and the events they report.
package domain

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Channel is a way of paying an invoice.
type Channel string

const (
	ChannelManual Channel = "MANUAL"
	ChannelDana   Channel = "DANA"
)

func ParseChannel(value string) (Channel, bool) {
	switch channel := Channel(strings.ToUpper(strings.TrimSpace(value))); channel {
	case ChannelManual, ChannelDana:
		return channel, true
	default:
		return "", false
	}
}

const (
	ModeManual   = "manual"
	ModeRedirect = "redirect"
)

// Outcome is what the provider reported for a charge.
type Outcome string

const (
	OutcomePending Outcome = "PENDING"
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
)

type ChargeRequest struct {
	InvoiceID     snowflake.ID
	InvoiceNumber string
	TenantID      snowflake.ID
	Amount        int64
	Currency      string
	Description   string
	DueDate       time.Time
}

// Instruction tells the payer where to transfer money.
type Instruction struct {
	BankName      string `json:"bank_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	AccountHolder string `json:"account_holder,omitempty"`
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency,omitempty"`
	CheckoutURL   string `json:"checkout_url,omitempty"`
}

type ChargeResult struct {
	Channel           Channel
	Mode              string
	Outcome           Outcome
	ProviderReference string
	Instruction       Instruction
}

const (
	EventTypePaymentReceived = "payment_received"
	EventTypeSettled         = "settled"
	EventTypeFailed          = "failed"
	EventTypeRefunded        = "refunded"
)

// Event is a provider notification parsed into canonical form.
type Event struct {
	Channel           Channel
	ProviderEventID   string
	ProviderReference string
	InvoiceNumber     string
	Type              string
	Amount            int64
	OccurredAt        time.Time
	RawPayload        []byte
}

// Adapter talks to one payment channel.
type Adapter interface {
	Channel() Channel
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*Event, error)
}

// EventRecord stores received provider notifications so replays are ignored.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Channel         Channel        `json:"channel" gorm:"type:varchar(16);not null;uniqueIndex:ux_payment_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_payment_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	InvoiceID       *snowflake.ID  `json:"invoice_id" gorm:"index"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

var (
	ErrProviderNotFound   = errors.New("payment_provider_not_found")
	ErrInvalidConfig      = errors.New("invalid_payment_config")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrInvalidEvent       = errors.New("invalid_event")
	ErrEventIgnored       = errors.New("event_ignored")
	ErrProviderTimeout    = errors.New("payment_provider_timeout")
	ErrProviderFailure    = errors.New("payment_provider_failure")
	ErrCallbackNotAllowed = errors.New("callback_not_supported")
)
