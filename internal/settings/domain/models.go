package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

const PaymentSettingsKey = "payment_settings"

// Setting is one keyed JSON document.
type Setting struct {
	Key       string            `gorm:"column:setting_key;primaryKey;type:varchar(64)" json:"key"`
	Value     datatypes.JSONMap `json:"value"`
	UpdatedBy *string           `gorm:"type:text" json:"updated_by,omitempty"`
	UpdatedAt time.Time         `gorm:"not null" json:"updated_at"`
}

func (Setting) TableName() string { return "settings" }

type UMKMScope string

const (
	UMKMScopeGlobal UMKMScope = "GLOBAL"
	UMKMScopeRW     UMKMScope = "RW"
)

type Gateway string

const (
	GatewayManual Gateway = "MANUAL"
	GatewayDana   Gateway = "DANA"
)

// Purpose is what a payment is for.
type Purpose string

const (
	PurposeSubscription Purpose = "subscription"
	PurposeIuranWarga   Purpose = "iuran_warga"
	PurposeUMKM         Purpose = "umkm"
)

var purposes = []Purpose{PurposeSubscription, PurposeIuranWarga, PurposeUMKM}

type Gateways struct {
	Subscription Gateway `json:"subscription"`
	IuranWarga   Gateway `json:"iuran_warga"`
	UMKM         Gateway `json:"umkm"`
}

// PaymentSettings is the resolved payment configuration. It is always
// complete: missing or unknown values are replaced by defaults.
type PaymentSettings struct {
	UMKMScope UMKMScope `json:"umkm_scope"`
	Gateways  Gateways  `json:"gateways"`
}

func DefaultPaymentSettings() PaymentSettings {
	return PaymentSettings{
		UMKMScope: UMKMScopeGlobal,
		Gateways: Gateways{
			Subscription: GatewayManual,
			IuranWarga:   GatewayManual,
			UMKM:         GatewayManual,
		},
	}
}

// For returns the gateway configured for purpose, MANUAL when unknown.
func (p PaymentSettings) For(purpose Purpose) Gateway {
	switch purpose {
	case PurposeSubscription:
		return p.Gateways.Subscription
	case PurposeIuranWarga:
		return p.Gateways.IuranWarga
	case PurposeUMKM:
		return p.Gateways.UMKM
	default:
		return GatewayManual
	}
}

// Document renders the settings as the stored JSON shape.
func (p PaymentSettings) Document() map[string]any {
	gateways := make(map[string]any, len(purposes))
	for _, purpose := range purposes {
		gateways[string(purpose)] = string(p.For(purpose))
	}
	return map[string]any{
		"umkm_scope": string(p.UMKMScope),
		"gateways":   gateways,
	}
}

// ParsePaymentSettings reads a stored or submitted document. It never fails.
func ParsePaymentSettings(doc map[string]any) PaymentSettings {
	out := DefaultPaymentSettings()
	if doc == nil {
		return out
	}
	if scope, ok := parseScope(doc["umkm_scope"]); ok {
		out.UMKMScope = scope
	}
	gateways, _ := doc["gateways"].(map[string]any)
	for _, purpose := range purposes {
		gateway, ok := parseGateway(gateways[string(purpose)])
		if !ok {
			continue
		}
		switch purpose {
		case PurposeSubscription:
			out.Gateways.Subscription = gateway
		case PurposeIuranWarga:
			out.Gateways.IuranWarga = gateway
		case PurposeUMKM:
			out.Gateways.UMKM = gateway
		}
	}
	return out
}

func parseScope(value any) (UMKMScope, bool) {
	raw, ok := value.(string)
	if !ok {
		return "", false
	}
	switch scope := UMKMScope(strings.ToUpper(strings.TrimSpace(raw))); scope {
	case UMKMScopeGlobal, UMKMScopeRW:
		return scope, true
	default:
		return "", false
	}
}

func parseGateway(value any) (Gateway, bool) {
	raw, ok := value.(string)
	if !ok {
		return "", false
	}
	switch gateway := Gateway(strings.ToUpper(strings.TrimSpace(raw))); gateway {
	case GatewayManual, GatewayDana:
		return gateway, true
	default:
		return "", false
	}
}
