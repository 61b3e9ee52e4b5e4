package api

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestValidateClaims(t *testing.T) {
	userID := uuid.New()

	cases := []struct {
		name     string
		claims   jwt.MapClaims
		audience string
		issuer   string
		wantErr  bool
	}{
		{
			name:     "matching audience and issuer",
			claims:   jwt.MapClaims{"sub": userID.String(), "aud": "remittance-api", "iss": "https://id.velopay.ae/"},
			audience: "remittance-api",
			issuer:   "https://id.velopay.ae/",
		},
		{
			name:   "checks skipped when unconfigured",
			claims: jwt.MapClaims{"sub": userID.String()},
		},
		{
			name:     "wrong audience",
			claims:   jwt.MapClaims{"sub": userID.String(), "aud": "other-api"},
			audience: "remittance-api",
			wantErr:  true,
		},
		{
			name:     "audience claim missing",
			claims:   jwt.MapClaims{"sub": userID.String()},
			audience: "remittance-api",
			wantErr:  true,
		},
		{
			name:    "wrong issuer",
			claims:  jwt.MapClaims{"sub": userID.String(), "iss": "https://evil.example/"},
			issuer:  "https://id.velopay.ae/",
			wantErr: true,
		},
		{
			name:    "sub missing",
			claims:  jwt.MapClaims{"aud": "remittance-api"},
			wantErr: true,
		},
		{
			name:    "sub is not a uuid",
			claims:  jwt.MapClaims{"sub": "user-42"},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := validateClaims(tc.claims, tc.audience, tc.issuer)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("validateClaims returned error: %v", err)
			}
			if got != userID {
				t.Fatalf("user ID = %s, want %s", got, userID)
			}
		})
	}
}
