package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identity "github.com/sleeved/go-identity"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		region  string
		want    string
		wantErr bool
	}{
		{name: "us national format", raw: "(415) 555-2671", region: "US", want: "+14155552671"},
		{name: "already e164", raw: "+14155552671", region: "US", want: "+14155552671"},
		{name: "foreign number with prefix", raw: "+44 20 7946 0958", region: "US", want: "+442079460958"},
		{name: "empty passes through", raw: "", region: "US", want: ""},
		{name: "garbage", raw: "not-a-phone", region: "US", wantErr: true},
		{name: "too short", raw: "123", region: "US", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := identity.NormalizePhone(tt.raw, tt.region)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
