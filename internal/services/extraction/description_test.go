package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDescriptionFieldFullLayout(t *testing.T) {
	// account(10) + payer account(10) + kobo(6) + YYYYMMDD(8) + filler
	desc := "0123456789" + "9876543210" + "123456" + "20260110" + "000000000"
	require.Len(t, desc, 43)

	decoded := DecodeDescriptionField(desc)

	assert.Equal(t, "0123456789", decoded.AccountNumber)
	assert.Equal(t, "9876543210", decoded.PayerAccountNumber)
	require.NotNil(t, decoded.Amount)
	assert.Equal(t, "1234.56", decoded.Amount.StringFixed(2))
	assert.Equal(t, "2026-01-10", decoded.Date)
}

func TestDecodeDescriptionFieldPadsFortyTwo(t *testing.T) {
	// 42 digits: one trailing zero is appended before slicing, so the
	// amount and date land in the same positions as the 43 layout.
	desc := "0123456789" + "9876543210" + "050000" + "20260110" + "00000000"
	require.Len(t, desc, 42)

	decoded := DecodeDescriptionField(desc)

	assert.Equal(t, "0123456789", decoded.AccountNumber)
	require.NotNil(t, decoded.Amount)
	assert.Equal(t, "500.00", decoded.Amount.StringFixed(2))
	assert.Equal(t, "2026-01-10", decoded.Date)
}

func TestDecodeDescriptionFieldShortLayout(t *testing.T) {
	desc := "0123456789" + "9876543210" + "0123456789"
	require.Len(t, desc, 30)

	decoded := DecodeDescriptionField(desc)

	assert.Equal(t, "0123456789", decoded.AccountNumber)
	assert.Equal(t, "9876543210", decoded.PayerAccountNumber)
	assert.Nil(t, decoded.Amount, "amount from the 30-digit layout is unreliable")
	assert.Empty(t, decoded.Date)
}

func TestDecodeDescriptionFieldRejectsGarbage(t *testing.T) {
	for _, desc := range []string{
		"",
		"12345",
		"01234567899876543210",
		"0123456789987654321012345X2026011000000000",
	} {
		decoded := DecodeDescriptionField(desc)
		assert.Empty(t, decoded.AccountNumber, "input %q", desc)
		assert.Nil(t, decoded.Amount, "input %q", desc)
	}
}

func TestExtractDescriptionField(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "labeled line",
			text: "Amount : NGN 500.00\nDescription : 0123456789987654321005000020260110000000000\nDate : 2026-01-10",
			want: "0123456789987654321005000020260110000000000",
		},
		{
			name: "digits embedded in narration",
			text: "Description: REF 012345678998765432100500002026011000 FROM JOHN",
			want: "012345678998765432100500002026011000",
		},
		{
			name: "no description line",
			text: "Amount : NGN 500.00",
			want: "",
		},
		{
			name: "description without digit run",
			text: "Description : TRANSFER FROM JOHN DOE",
			want: "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractDescriptionField(tc.text))
		})
	}
}
