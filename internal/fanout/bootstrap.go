package fanout

import (
	"encoding/json"
	"log/slog"
	"os"
)

// LoadSubscriptionsFromEnv seeds the fan-out with subscriptions from the
// environment: SUBSCRIPTIONS_FILE names a JSON file holding an array of
// subscriptions, SUBSCRIPTIONS_JSON holds the array inline. Returns the
// number of subscriptions registered.
func LoadSubscriptionsFromEnv(f *FanOut) int {
	raw := []byte(os.Getenv("SUBSCRIPTIONS_JSON"))
	if len(raw) == 0 {
		path := os.Getenv("SUBSCRIPTIONS_FILE")
		if path == "" {
			return 0
		}
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("Failed to read subscriptions file", "path", path, "error", err)
			return 0
		}
		raw = data
	}

	var subs []Subscription
	if err := json.Unmarshal(raw, &subs); err != nil {
		slog.Error("Failed to parse subscriptions", "error", err)
		return 0
	}

	registered := 0
	for _, sub := range subs {
		if sub.SubscriberID == "" {
			slog.Warn("Skipping subscription without subscriber_id")
			continue
		}
		f.Subscribe(sub)
		registered++
	}
	return registered
}
