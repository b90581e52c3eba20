package discount

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	tests := []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{name: "valid flat", def: flat("FLAT100", "100")},
		{name: "valid window", def: Definition{Code: "W", Kind: KindFlat, Value: d("1"), ValidFrom: &start, ValidUntil: &end}},
		{name: "valid buy x get y", def: Definition{Code: "B", Kind: KindBuyXGetY, Rules: Rules{BuyQty: intp(2), GetQty: intp(1)}}},
		{name: "missing code", def: Definition{Kind: KindFlat, Value: d("1")}, wantErr: true},
		{name: "code with space", def: Definition{Code: "A B", Kind: KindFlat}, wantErr: true},
		{name: "code too long", def: Definition{Code: strings.Repeat("A", 65), Kind: KindFlat}, wantErr: true},
		{name: "missing kind", def: Definition{Code: "A"}, wantErr: true},
		{name: "unknown kind", def: Definition{Code: "A", Kind: "mystery"}, wantErr: true},
		{name: "negative value", def: Definition{Code: "A", Kind: KindFlat, Value: d("-1")}, wantErr: true},
		{name: "percentage above 100", def: percentage("P", "101"), wantErr: true},
		{name: "negative cap", def: Definition{Code: "A", Kind: KindFlat, MaxDiscount: nd("-5")}, wantErr: true},
		{name: "negative rules value", def: Definition{Code: "A", Kind: KindConditional, Rules: Rules{Value: nd("-5")}}, wantErr: true},
		{name: "negative buy quantity", def: Definition{Code: "A", Kind: KindBuyXGetY, Rules: Rules{BuyQty: intp(-1)}}, wantErr: true},
		{name: "window reversed", def: Definition{Code: "A", Kind: KindFlat, ValidFrom: &end, ValidUntil: &start}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.def)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidDefinition)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRulesJSON(t *testing.T) {
	in := Rules{BuyQty: intp(3), GetQty: intp(1), Category: "Kurti", FixedTotal: nd("999.5")}

	data, err := in.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"buy_qty":3,"get_qty":1,"category":"Kurti","fixed_total":999.5}`, string(data))

	var out Rules
	require.NoError(t, out.UnmarshalJSON(data))
	assert.Equal(t, 3, *out.BuyQty)
	assert.Equal(t, 1, *out.GetQty)
	assert.Equal(t, "Kurti", out.Category)
	assert.True(t, d("999.5").Equal(out.FixedTotal.Decimal))
	assert.False(t, out.MinTotal.Valid)
}

func TestRulesJSON_Lenient(t *testing.T) {
	var r Rules
	require.NoError(t, r.UnmarshalJSON([]byte(`{"min_total":"3500","value":100,"category":null,"note":"x"}`)))
	assert.True(t, d("3500").Equal(r.MinTotal.Decimal))
	assert.True(t, d("100").Equal(r.Value.Decimal))
	assert.Empty(t, r.Category)

	require.NoError(t, r.UnmarshalJSON([]byte(`null`)))
	assert.Equal(t, Rules{}, r)

	require.Error(t, r.UnmarshalJSON([]byte(`{"buy_qty":"two"}`)))
}
