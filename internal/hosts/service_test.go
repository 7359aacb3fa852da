package hosts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pollerCreds struct {
	BaseURL string `json:"base_url" validate:"required,url"`
	APIKey  string `json:"api_key" validate:"required"`
}

func TestCredentialsDecodeAndValidate(t *testing.T) {
	t.Parallel()

	ch := Channel{
		Channel:     ChannelKrossbooking,
		Credentials: json.RawMessage(`{"base_url":"https://api.example.com","api_key":"k"}`),
	}
	creds, err := Credentials[pollerCreds](ch)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", creds.BaseURL)
	assert.Equal(t, "k", creds.APIKey)
}

func TestCredentialsRejectMissingRequiredFields(t *testing.T) {
	t.Parallel()

	ch := Channel{
		Channel:     ChannelKrossbooking,
		Credentials: json.RawMessage(`{"base_url":"https://api.example.com"}`),
	}
	_, err := Credentials[pollerCreds](ch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid krossbooking credentials")
}

func TestCredentialsRejectMalformedJSON(t *testing.T) {
	t.Parallel()

	ch := Channel{Channel: ChannelSmoobu, Credentials: json.RawMessage(`{`)}
	_, err := Credentials[pollerCreds](ch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode smoobu credentials")
}
