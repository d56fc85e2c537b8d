package oauth

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMetadata_SupportsPKCE(t *testing.T) {
	tests := []struct {
		name    string
		methods []string
		want    bool
	}{
		{name: "S256 listed", methods: []string{"plain", "S256"}, want: true},
		{name: "only plain", methods: []string{"plain"}, want: false},
		{name: "not advertised", methods: nil, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Metadata{CodeChallengeMethodsSupported: tt.methods}
			if got := m.SupportsPKCE(); got != tt.want {
				t.Errorf("SupportsPKCE() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClientRegistration_JSON(t *testing.T) {
	reg := ClientRegistration{ClientID: "cid", RedirectURI: "http://127.0.0.1:8765/"}
	data, err := json.Marshal(reg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"client_id":"cid","redirect_uri":"http://127.0.0.1:8765/"}`
	if string(data) != want {
		t.Errorf("JSON = %s, want %s", data, want)
	}
}

func TestToken_ToOAuth2Token(t *testing.T) {
	tok := &Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", ExpiresIn: 3600}
	o := tok.ToOAuth2Token()

	if o.AccessToken != "a" || o.RefreshToken != "r" || o.TokenType != "Bearer" {
		t.Errorf("unexpected token %+v", o)
	}
	if d := time.Until(o.Expiry); d < 59*time.Minute || d > time.Hour {
		t.Errorf("expiry %v not about an hour away", o.Expiry)
	}

	noExpiry := (&Token{AccessToken: "a"}).ToOAuth2Token()
	if !noExpiry.Expiry.IsZero() {
		t.Error("expected zero expiry when expires_in is absent")
	}
}
