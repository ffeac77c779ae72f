package paymentwebhook

import (
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestParseNotificationShapes(t *testing.T) {
	businessID := uuid.New()
	scope := "business=" + businessID.String()

	cases := []struct {
		name  string
		query string
		body  string
		topic string
		id    string
	}{
		{"mercadopago webhook", scope, `{"action":"payment.created","type":"payment","data":{"id":"123456"}}`, TopicPayment, "123456"},
		{"numeric data id", scope, `{"type":"payment","data":{"id":987}}`, TopicPayment, "987"},
		{"ipn query", scope + "&topic=payment&id=555", ``, TopicPayment, "555"},
		{"webhook query", scope + "&type=payment&data.id=777", `{}`, TopicPayment, "777"},
		{"ipn resource", scope, `{"topic":"payment","resource":"https://api.mercadopago.com/v1/payments/42"}`, TopicPayment, "42"},
		{"merchant order", scope + "&topic=merchant_order&id=1", ``, "merchant_order", "1"},
		{"square payment event", scope, `{"type":"payment.updated","event_id":"e","data":{"type":"payment","id":"sqPAY"}}`, TopicPayment, "sqPAY"},
		{"garbage body", scope + "&topic=payment&id=9", `not json`, TopicPayment, "9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := url.ParseQuery(tc.query)
			require.NoError(t, err)
			n := ParseNotification(q, []byte(tc.body))
			require.Equal(t, tc.topic, n.Topic)
			require.Equal(t, tc.id, n.ID)
			require.Equal(t, businessID, n.BusinessID)
		})
	}
}

func TestParseNotificationWithoutBusiness(t *testing.T) {
	n := ParseNotification(url.Values{}, []byte(`{"type":"payment","data":{"id":"1"}}`))
	require.True(t, n.IsPayment())
	require.Equal(t, uuid.Nil, n.BusinessID)
}
