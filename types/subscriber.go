// Package types provides common data types for storing subscribers.
package types

// SubscriberSource identifies the surface a subscription was created from.
const SubscriberSource = "landing-page"

// Subscriber models a single email subscription as persisted in the store.
type Subscriber struct {
	Email     string `json:"email"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
	IP        string `json:"ip"`
}
