package jsonutil

import (
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDecimal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		valid   bool
		wantErr bool
	}{
		{name: "Number", input: `12.5`, want: "12.5", valid: true},
		{name: "String", input: `"1499.00"`, want: "1499", valid: true},
		{name: "Null", input: `null`},
		{name: "EmptyString", input: `""`},
		{name: "BadString", input: `"abc"`, wantErr: true},
		{name: "Bool", input: `true`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadDecimal(jx.DecodeStr(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				assert.True(t, decimal.RequireFromString(tt.want).Equal(got.Decimal))
			}
		})
	}
}

func TestReadIntPtr(t *testing.T) {
	v, err := ReadIntPtr(jx.DecodeStr(`3`))
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 3, *v)

	v, err = ReadIntPtr(jx.DecodeStr(`null`))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestReadTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *time.Time
		wantErr bool
	}{
		{name: "RFC3339", input: `"2026-01-15T10:30:00Z"`, want: ptr(time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC))},
		{name: "DateOnly", input: `"2026-01-15"`, want: ptr(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))},
		{name: "Null", input: `null`},
		{name: "Empty", input: `""`},
		{name: "Garbage", input: `"yesterday"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadTime(jx.DecodeStr(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got))
		})
	}
}

func TestReadEndTime(t *testing.T) {
	got, err := ReadEndTime(jx.DecodeStr(`"2026-03-15"`))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 3, 15, 23, 59, 59, 999999000, time.UTC), *got)

	got, err = ReadEndTime(jx.DecodeStr(`"2026-03-15T10:00:00Z"`))
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC).Equal(*got))

	got, err = ReadEndTime(jx.DecodeStr(`null`))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWriteTime_EndOfDayRoundTrip(t *testing.T) {
	end, err := ReadEndTime(jx.DecodeStr(`"2026-03-15"`))
	require.NoError(t, err)

	var e jx.Encoder
	WriteTime(&e, end)
	assert.Equal(t, `"2026-03-15T23:59:59.999999Z"`, e.String())

	back, err := ReadTime(jx.DecodeStr(e.String()))
	require.NoError(t, err)
	assert.True(t, end.Equal(*back))
}

func TestWriters(t *testing.T) {
	var e jx.Encoder
	e.ArrStart()
	WriteDecimal(&e, decimal.RequireFromString("10.5"))
	WriteNullDecimal(&e, decimal.NullDecimal{})
	WriteNullDecimal(&e, decimal.NewNullDecimal(decimal.NewFromInt(12)))
	WriteTime(&e, nil)
	WriteTime(&e, ptr(time.Date(2026, 3, 1, 5, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))))
	e.ArrEnd()

	assert.Equal(t, `[10.50,null,12,null,"2026-03-01T00:00:00Z"]`, e.String())
}

func ptr[T any](v T) *T { return &v }
