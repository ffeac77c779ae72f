package paymentwebhook

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TopicPayment is the only notification topic that is processed.
const TopicPayment = "payment"

// Notification is a gateway notification reduced to what the receiver needs.
// It carries only an id; the payment status is always read back from the
// gateway.
type Notification struct {
	Topic      string
	ID         string
	BusinessID uuid.UUID
	RequestID  string
	ReceivedAt time.Time
}

// IsPayment reports whether the notification is about a payment.
func (n Notification) IsPayment() bool {
	return n.Topic == TopicPayment
}

type notificationBody struct {
	Topic  string          `json:"topic"`
	Type   string          `json:"type"`
	Action string          `json:"action"`
	ID     json.RawMessage `json:"id"`
	Data   struct {
		ID   json.RawMessage `json:"id"`
		Type string          `json:"type"`
	} `json:"data"`
	Resource string `json:"resource"`
}

// ParseNotification normalizes the notification shapes sent by MercadoPago
// (body or query, webhook or IPN style) and Square (payment.* events). The
// body may be empty or malformed; the query string is consulted as well.
func ParseNotification(query url.Values, body []byte) Notification {
	var parsed notificationBody
	if len(body) > 0 {
		_ = json.Unmarshal(body, &parsed)
	}

	topic := firstNonEmpty(parsed.Type, parsed.Topic, query.Get("type"), query.Get("topic"))
	id := firstNonEmpty(
		rawID(parsed.Data.ID),
		query.Get("data.id"),
		resourceID(parsed.Resource),
		query.Get("id"),
		rawID(parsed.ID),
	)

	n := Notification{
		Topic:      normalizeTopic(topic, parsed.Data.Type),
		ID:         id,
		ReceivedAt: time.Now().UTC(),
	}
	if businessID, err := uuid.Parse(strings.TrimSpace(query.Get("business"))); err == nil {
		n.BusinessID = businessID
	}
	return n
}

func normalizeTopic(topic, dataType string) string {
	topic = strings.ToLower(strings.TrimSpace(topic))
	switch {
	case topic == TopicPayment:
		return TopicPayment
	case strings.HasPrefix(topic, TopicPayment+"."):
		return TopicPayment
	case topic == "" && strings.EqualFold(dataType, TopicPayment):
		return TopicPayment
	default:
		return topic
	}
}

// rawID accepts both numeric and string ids.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// resourceID extracts the trailing id from IPN resource URLs.
func resourceID(resource string) string {
	resource = strings.TrimRight(strings.TrimSpace(resource), "/")
	if resource == "" {
		return ""
	}
	if i := strings.LastIndex(resource, "/"); i >= 0 {
		return resource[i+1:]
	}
	return resource
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
