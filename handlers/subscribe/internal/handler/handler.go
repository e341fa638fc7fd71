// Package handler provides the Lambda function implementation.
package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"signup/types"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

// KeyValueStore allows reading and writing subscriber records by key.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}

// Handler provides the Lambda implementation to subscribe an email address.
type Handler struct {
	store KeyValueStore
	now   func() time.Time
}

// New creates an instance of Handler that persists subscribers to `store`.
func New(store KeyValueStore) *Handler {
	return &Handler{store, time.Now}
}

// SubscribeResponse is the JSON body of every response from Subscribe.
type SubscribeResponse struct {
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

const (
	msgSubscribed   = "Successfully subscribed!"
	msgInvalidEmail = "Please provide a valid email address"
	msgDuplicate    = "This email is already subscribed"
	msgFailed       = "Failed to subscribe. Please try again."
)

// ClientIPHeader is the header set by the edge network with the originating client address.
const ClientIPHeader = "cf-connecting-ip"

const unknownIP = "unknown"

// jsSpace matches the same characters as \s in an ECMAScript regular expression.
const jsSpace = `\t\n\v\f\r \x{00a0}\x{1680}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}`

var emailRegexp = regexp.MustCompile(`^[^` + jsSpace + `@]+@[^` + jsSpace + `@]+\.[^` + jsSpace + `@]+$`)

// Subscribe validates the email in the request body and stores it if it isn't already subscribed.
//
// The duplicate check and the writes are not atomic: concurrent requests for the
// same email can both pass the check and both write.
func (h *Handler) Subscribe(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	email, ok, err := parseEmail(req)
	if err != nil {
		return failed(err)
	}
	if !ok || !emailRegexp.MatchString(email) {
		return response(http.StatusBadRequest, SubscribeResponse{Error: msgInvalidEmail})
	}

	existing, found, err := h.store.Get(ctx, email)
	if err != nil {
		return failed(fmt.Errorf("error checking for existing subscriber: %w", err))
	}
	// An empty stored value counts as absent.
	if found && existing != "" {
		return response(http.StatusConflict, SubscribeResponse{Error: msgDuplicate})
	}

	sub := types.Subscriber{
		Email:     email,
		Timestamp: h.now().UnixMilli(),
		Source:    types.SubscriberSource,
		IP:        clientIP(req.Headers),
	}
	b, err := json.Marshal(sub)
	if err != nil {
		return failed(fmt.Errorf("could not marshal subscriber: %w", err))
	}

	if err := h.store.Put(ctx, email, string(b)); err != nil {
		return failed(fmt.Errorf("error storing subscriber: %w", err))
	}
	if err := h.store.Put(ctx, timestampKey(h.now(), email), string(b)); err != nil {
		return failed(fmt.Errorf("error storing subscriber by timestamp: %w", err))
	}

	return response(http.StatusOK, SubscribeResponse{Success: true, Message: msgSubscribed})
}

// timestampKey returns the key used to list subscribers in the order they signed up.
func timestampKey(t time.Time, email string) string {
	return fmt.Sprintf("subscriber:%d:%s", t.UnixMilli(), email)
}

// parseEmail extracts the email field from the request body. An error is returned only
// when the body is not valid JSON or is null; a non-object body or a missing or
// non-string field yields ok == false.
func parseEmail(req events.APIGatewayV2HTTPRequest) (email string, ok bool, err error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		body, err = base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return "", false, fmt.Errorf("could not decode body: %w", err)
		}
	}

	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", false, fmt.Errorf("could not unmarshal body: %w", err)
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", false, errors.New("could not unmarshal body: body was null")
	}

	// Arrays and scalars have no fields, so email is absent.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", false, nil
	}

	field, found := fields["email"]
	if !found {
		return "", false, nil
	}
	if err := json.Unmarshal(field, &email); err != nil {
		return "", false, nil
	}
	return email, email != "", nil
}

func clientIP(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, ClientIPHeader) && v != "" {
			return v
		}
	}
	return unknownIP
}

// failed logs err and returns the generic failure response. The Lambda error is
// always nil so that API Gateway passes the body through.
func failed(err error) (events.APIGatewayV2HTTPResponse, error) {
	log.Printf("subscription error: %v", err)
	return response(http.StatusInternalServerError, SubscribeResponse{Error: msgFailed})
}

func response(status int, body SubscribeResponse) (events.APIGatewayV2HTTPResponse, error) {
	b, err := json.Marshal(body)
	if err != nil {
		err = fmt.Errorf("error marshalling response body: %w", err)
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"content-type": "application/json",
		},
		Body: string(b),
	}, err
}
