package domain

import "testing"

func TestClassifyIdentifier(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		want       IdentifierKind
	}{
		{
			name:       "classifies a UAE IBAN",
			identifier: "AE070331234567890123456",
			want:       IdentifierIBAN,
		},
		{
			name:       "classifies a short IBAN with no tail",
			identifier: "GB29NWBK6016133",
			want:       IdentifierIBAN,
		},
		{
			name:       "classifies an international mobile number",
			identifier: "+971501234567",
			want:       IdentifierMobileNumber,
		},
		{
			name:       "classifies a bare digit string of mobile length as mobile",
			identifier: "1234567890",
			want:       IdentifierMobileNumber,
		},
		{
			name:       "classifies a long digit string as bank account",
			identifier: "12345678901234567890",
			want:       IdentifierBankAccount,
		},
		{
			name:       "classifies an eight digit string as bank account",
			identifier: "12345678",
			want:       IdentifierBankAccount,
		},
		{
			name:       "trims surrounding whitespace",
			identifier: "  +971501234567  ",
			want:       IdentifierMobileNumber,
		},
		{
			name:       "rejects empty input",
			identifier: "",
			want:       IdentifierUnclassified,
		},
		{
			name:       "rejects free text",
			identifier: "pay my landlord",
			want:       IdentifierUnclassified,
		},
		{
			name:       "rejects lowercase iban prefix",
			identifier: "ae070331234567890123456",
			want:       IdentifierUnclassified,
		},
		{
			name:       "rejects plus sign in the middle",
			identifier: "9715+01234567",
			want:       IdentifierUnclassified,
		},
		{
			name:       "rejects short digit strings",
			identifier: "1234567",
			want:       IdentifierUnclassified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyIdentifier(tt.identifier); got != tt.want {
				t.Fatalf("ClassifyIdentifier(%q) = %q, want %q", tt.identifier, got, tt.want)
			}
		})
	}
}

func TestClassifyIdentifierIsDeterministic(t *testing.T) {
	inputs := []string{
		"AE070331234567890123456",
		"+971501234567",
		"12345678901234567890",
		"not an identifier",
	}
	for _, in := range inputs {
		first := ClassifyIdentifier(in)
		for i := 0; i < 10; i++ {
			if got := ClassifyIdentifier(in); got != first {
				t.Fatalf("ClassifyIdentifier(%q) changed between calls: %q then %q", in, first, got)
			}
		}
	}
}

func TestClassifyIdentifierPriorityOrdering(t *testing.T) {
	// Digit strings of length 10-15 satisfy both the mobile and bank-account
	// shapes; the mobile rule must win.
	for _, in := range []string{"1234567890", "123456789012345"} {
		if got := ClassifyIdentifier(in); got != IdentifierMobileNumber {
			t.Fatalf("ClassifyIdentifier(%q) = %q, want %q", in, got, IdentifierMobileNumber)
		}
	}
}

func TestClassifyDeclared(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		declared   IdentifierKind
		want       IdentifierKind
	}{
		{
			name:       "declared bank account wins over mobile sniffing",
			identifier: "1234567890",
			declared:   IdentifierBankAccount,
			want:       IdentifierBankAccount,
		},
		{
			name:       "declared bank account falls back when shape does not fit",
			identifier: "+971501234567",
			declared:   IdentifierBankAccount,
			want:       IdentifierMobileNumber,
		},
		{
			name:       "declared mobile keeps mobile",
			identifier: "971501234567",
			declared:   IdentifierMobileNumber,
			want:       IdentifierMobileNumber,
		},
		{
			name:       "no declared kind uses priority order",
			identifier: "1234567890",
			declared:   "",
			want:       IdentifierMobileNumber,
		},
		{
			name:       "declared iban with invalid shape falls back to unclassified",
			identifier: "XX-not-an-iban",
			declared:   IdentifierIBAN,
			want:       IdentifierUnclassified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyDeclared(tt.identifier, tt.declared); got != tt.want {
				t.Fatalf("ClassifyDeclared(%q, %q) = %q, want %q", tt.identifier, tt.declared, got, tt.want)
			}
		})
	}
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{225800.0, 225800},
		{100.5, 101},
		{100.49, 100},
		{0.5, 1},
		{2257.999, 2258},
	}
	for _, tt := range tests {
		if got := RoundHalfUp(tt.in); got != tt.want {
			t.Fatalf("RoundHalfUp(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
