// internal/common/expo/client_test.go
package expo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendPushNotification_OkTicket(t *testing.T) {
	var gotAuth string
	var gotMessages []PushMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/--/api/v2/push/send", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotMessages))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"status": "ok", "id": "ticket-1"}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-token", 5*time.Second)
	ticket, err := client.SendPushNotification(context.Background(), PushMessage{
		To:    "ExponentPushToken[abc]",
		Sound: "default",
		Title: "It's time to renew subscription",
		Body:  "Your subscription is due tomorrow for Netflix",
		Data:  map[string]string{"subscriptionId": "sub-1", "type": "renewal_reminder"},
	})
	require.NoError(t, err)

	assert.True(t, ticket.Ok())
	assert.Equal(t, "ticket-1", ticket.ID)
	assert.Equal(t, "Bearer secret-token", gotAuth)

	require.Len(t, gotMessages, 1)
	assert.Equal(t, "ExponentPushToken[abc]", gotMessages[0].To)
	assert.Equal(t, "default", gotMessages[0].Sound)
	assert.Equal(t, "renewal_reminder", gotMessages[0].Data["type"])
}

func TestSendPushNotification_DeviceNotRegisteredTicket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{
				"status":  "error",
				"message": "\"ExponentPushToken[gone]\" is not a registered push notification recipient",
				"details": map[string]string{"error": "DeviceNotRegistered"},
			}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second)
	ticket, err := client.SendPushNotification(context.Background(), PushMessage{To: "ExponentPushToken[gone]"})
	require.NoError(t, err)

	assert.False(t, ticket.Ok())
	assert.True(t, ticket.DeviceNotRegistered())
}

func TestSendPushNotification_GatewayErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second)
	_, err := client.SendPushNotification(context.Background(), PushMessage{To: "ExponentPushToken[abc]"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestSendPushNotification_NoAuthHeaderWithoutToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"status": "ok"}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second)
	_, err := client.SendPushNotification(context.Background(), PushMessage{To: "ExponentPushToken[abc]"})
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestIsExpoPushToken(t *testing.T) {
	assert.True(t, IsExpoPushToken("ExponentPushToken[xxxxxx]"))
	assert.True(t, IsExpoPushToken("ExpoPushToken[xxxxxx]"))
	assert.False(t, IsExpoPushToken(""))
	assert.False(t, IsExpoPushToken("fcm-token-123"))
	assert.False(t, IsExpoPushToken("ExponentPushToken[missing-bracket"))
}
