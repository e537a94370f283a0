package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePaymentSettingsDefaults(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
		want PaymentSettings
	}{
		{name: "nil document", doc: nil, want: DefaultPaymentSettings()},
		{name: "missing scope", doc: map[string]any{"gateways": map[string]any{}}, want: DefaultPaymentSettings()},
		{name: "invalid scope", doc: map[string]any{"umkm_scope": "KELURAHAN"}, want: DefaultPaymentSettings()},
		{name: "scope of wrong type", doc: map[string]any{"umkm_scope": 7}, want: DefaultPaymentSettings()},
		{
			name: "valid values are kept",
			doc: map[string]any{
				"umkm_scope": "rw",
				"gateways":   map[string]any{"subscription": "dana", "umkm": "BITCOIN"},
			},
			want: PaymentSettings{
				UMKMScope: UMKMScopeRW,
				Gateways: Gateways{
					Subscription: GatewayDana,
					IuranWarga:   GatewayManual,
					UMKM:         GatewayManual,
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePaymentSettings(tt.doc))
		})
	}
}

func TestGatewayForUnknownPurpose(t *testing.T) {
	settings := DefaultPaymentSettings()
	settings.Gateways.Subscription = GatewayDana

	assert.Equal(t, GatewayDana, settings.For(PurposeSubscription))
	assert.Equal(t, GatewayManual, settings.For(Purpose("donation")))
}

func TestDocumentRoundTrip(t *testing.T) {
	settings := PaymentSettings{
		UMKMScope: UMKMScopeRW,
		Gateways:  Gateways{Subscription: GatewayDana, IuranWarga: GatewayDana, UMKM: GatewayManual},
	}
	assert.Equal(t, settings, ParsePaymentSettings(settings.Document()))
}
