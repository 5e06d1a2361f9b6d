package credits

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCreditsFromAmount(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{in: "10.00", want: 100},
		{in: "20.00", want: 200},
		{in: "100.00", want: 1000},
		{in: "0.14", want: 1},
		{in: "0.09", want: 0},
		{in: "0.10", want: 1},
		{in: "999.99", want: 9999},
	}

	for _, tt := range tests {
		amount, err := decimal.NewFromString(tt.in)
		if err != nil {
			t.Fatalf("bad test amount %q: %v", tt.in, err)
		}
		if got := CreditsFromAmount(amount); got != tt.want {
			t.Fatalf("CreditsFromAmount(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestValidateTopupAmount(t *testing.T) {
	tests := []struct {
		in      string
		wantErr error
	}{
		{in: "5.50", wantErr: nil},
		{in: "1", wantErr: nil},
		{in: "1000", wantErr: nil},
		{in: "0.5", wantErr: ErrAmountOutOfRange},
		{in: "0", wantErr: ErrAmountOutOfRange},
		{in: "-3", wantErr: ErrAmountOutOfRange},
		{in: "1000.01", wantErr: ErrAmountOutOfRange},
		{in: "5.555", wantErr: ErrAmountPrecision},
	}

	for _, tt := range tests {
		amount, err := decimal.NewFromString(tt.in)
		if err != nil {
			t.Fatalf("bad test amount %q: %v", tt.in, err)
		}
		if got := ValidateTopupAmount(amount); got != tt.wantErr {
			t.Fatalf("ValidateTopupAmount(%s) = %v, want %v", tt.in, got, tt.wantErr)
		}
	}
}
