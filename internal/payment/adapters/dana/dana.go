// Package dana implements DANA e-wallet checkout and its payment notifications.
package dana

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/rukun/internal/config"
	paymentdomain "github.com/smallbiznis/rukun/internal/payment/domain"
)

const (
	headerTimestamp = "X-Dana-Timestamp"
	headerSignature = "X-Dana-Signature"

	chargePath         = "/v1/payments"
	signatureTolerance = 5 * time.Minute
)

type Adapter struct {
	endpoint   string
	merchantID string
	secret     string
	timeout    time.Duration
	client     *http.Client
	now        func() time.Time
}

func New(cfg config.Config) *Adapter {
	return &Adapter{
		endpoint:   strings.TrimRight(strings.TrimSpace(cfg.Payment.DanaEndpoint), "/"),
		merchantID: strings.TrimSpace(cfg.Payment.DanaMerchantID),
		secret:     strings.TrimSpace(cfg.Payment.DanaSecret),
		timeout:    cfg.Payment.ProviderTimeout,
		client:     &http.Client{},
		now:        time.Now,
	}
}

func (a *Adapter) Channel() paymentdomain.Channel {
	return paymentdomain.ChannelDana
}

type chargeBody struct {
	MerchantID  string `json:"merchant_id"`
	Reference   string `json:"merchant_reference"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

type chargeResponse struct {
	Status      string `json:"status"`
	Reference   string `json:"reference"`
	CheckoutURL string `json:"checkout_url"`
	Message     string `json:"message"`
}

// Charge opens a checkout at DANA. Any error, including a timeout, leaves
// the outcome unknown and is returned to the caller.
func (a *Adapter) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error) {
	if a.endpoint == "" || a.merchantID == "" || a.secret == "" {
		return paymentdomain.ChargeResult{}, paymentdomain.ErrInvalidConfig
	}

	body := chargeBody{
		MerchantID:  a.merchantID,
		Reference:   req.InvoiceNumber,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
	}
	if !req.DueDate.IsZero() {
		body.ExpiresAt = req.DueDate.UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return paymentdomain.ChargeResult{}, err
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+chargePath, bytes.NewReader(payload))
	if err != nil {
		return paymentdomain.ChargeResult{}, err
	}
	timestamp := strconv.FormatInt(a.now().Unix(), 10)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerTimestamp, timestamp)
	httpReq.Header.Set(headerSignature, Sign(a.secret, timestamp, payload))

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			return paymentdomain.ChargeResult{}, paymentdomain.ErrProviderTimeout
		}
		return paymentdomain.ChargeResult{}, fmt.Errorf("%w: %v", paymentdomain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(ctx, err) {
			return paymentdomain.ChargeResult{}, paymentdomain.ErrProviderTimeout
		}
		return paymentdomain.ChargeResult{}, fmt.Errorf("%w: %v", paymentdomain.ErrProviderFailure, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return paymentdomain.ChargeResult{}, fmt.Errorf("%w: status %d", paymentdomain.ErrProviderFailure, resp.StatusCode)
	}

	var decoded chargeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return paymentdomain.ChargeResult{}, fmt.Errorf("%w: %v", paymentdomain.ErrProviderFailure, err)
	}

	result := paymentdomain.ChargeResult{
		Channel:           paymentdomain.ChannelDana,
		Mode:              paymentdomain.ModeRedirect,
		ProviderReference: decoded.Reference,
		Instruction: paymentdomain.Instruction{
			Reference:   req.InvoiceNumber,
			Amount:      req.Amount,
			Currency:    req.Currency,
			CheckoutURL: decoded.CheckoutURL,
		},
	}
	switch strings.ToUpper(strings.TrimSpace(decoded.Status)) {
	case "SUCCESS":
		result.Outcome = paymentdomain.OutcomeSuccess
	case "FAILED":
		result.Outcome = paymentdomain.OutcomeFailed
	default:
		result.Outcome = paymentdomain.OutcomePending
	}
	return result, nil
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.secret == "" {
		return paymentdomain.ErrInvalidConfig
	}
	timestamp := strings.TrimSpace(headers.Get(headerTimestamp))
	signature := strings.TrimSpace(headers.Get(headerSignature))
	if timestamp == "" || signature == "" {
		return paymentdomain.ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	age := a.now().Sub(time.Unix(unix, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return paymentdomain.ErrInvalidSignature
	}

	expected := Sign(a.secret, timestamp, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

type notification struct {
	EventID           string `json:"event_id"`
	EventType         string `json:"event_type"`
	Reference         string `json:"reference"`
	MerchantReference string `json:"merchant_reference"`
	Amount            int64  `json:"amount"`
	OccurredAt        string `json:"occurred_at"`
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Event, error) {
	var event notification
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.EventID) == "" || strings.TrimSpace(event.MerchantReference) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var eventType string
	switch strings.ToUpper(strings.TrimSpace(event.EventType)) {
	case "PAYMENT_RECEIVED":
		eventType = paymentdomain.EventTypePaymentReceived
	case "PAYMENT_SETTLED":
		eventType = paymentdomain.EventTypeSettled
	case "PAYMENT_FAILED", "PAYMENT_EXPIRED":
		eventType = paymentdomain.EventTypeFailed
	case "REFUNDED":
		eventType = paymentdomain.EventTypeRefunded
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	occurredAt := a.now().UTC()
	if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(event.OccurredAt)); err == nil {
		occurredAt = parsed.UTC()
	}

	return &paymentdomain.Event{
		Channel:           paymentdomain.ChannelDana,
		ProviderEventID:   strings.TrimSpace(event.EventID),
		ProviderReference: strings.TrimSpace(event.Reference),
		InvoiceNumber:     strings.TrimSpace(event.MerchantReference),
		Type:              eventType,
		Amount:            event.Amount,
		OccurredAt:        occurredAt,
		RawPayload:        payload,
	}, nil
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<payload>".
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
