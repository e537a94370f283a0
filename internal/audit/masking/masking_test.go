package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSensitive(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"dana_secret":    "supersecretvalue",
		"channel":        "DANA",
		"account_number": "1234567890",
		"nested": map[string]any{
			"password": "abc",
			"plan_id":  "rt-monthly",
		},
	})

	assert.Equal(t, "****alue", out["dana_secret"])
	assert.Equal(t, "DANA", out["channel"])
	assert.Equal(t, "****7890", out["account_number"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, "****", nested["password"])
	assert.Equal(t, "rt-monthly", nested["plan_id"])
}

func TestMaskSensitiveEmpty(t *testing.T) {
	assert.Empty(t, MaskSensitive(nil))
}
