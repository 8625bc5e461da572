package room

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/VirbeHQ/being-core/core/synthesis"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Client talks to the turn-store REST backend.
type Client struct {
	baseURL    string
	apiKey     string
	locationID string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey, locationID string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		locationID: locationID,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
}

// CreateRoom creates the turn-store resource. Creation is not retried here; a
// failed call must be retried by the caller.
func (c *Client) CreateRoom(ctx context.Context, endUserID string) (*Room, error) {
	ctx, span := tracer.Start(ctx, "create room")
	defer span.End()

	var room Room
	err := c.do(ctx, http.MethodPost, "/rooms", createRoomRequest{
		LocationID: c.locationID,
		EndUserID:  endUserID,
	}, &room)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	span.SetAttributes(attribute.String("room.id", room.ID))
	return &room, nil
}

// Room fetches the turn-store resource, primarily for its modification
// timestamp.
func (c *Client) Room(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	if err := c.do(ctx, http.MethodGet, "/rooms/"+roomID, nil, &room); err != nil {
		return nil, fmt.Errorf("failed to fetch room: %w", err)
	}
	return &room, nil
}

// Messages fetches turns created strictly after the given server timestamp.
// The store returns results newest-first.
func (c *Client) Messages(ctx context.Context, roomID string, after time.Time) (int, []Message, error) {
	path := "/rooms/" + roomID + "/messages"
	if !after.IsZero() {
		path += "?after=" + url.QueryEscape(after.Format(time.RFC3339Nano))
	}

	var response messagesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &response); err != nil {
		return 0, nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return response.Count, response.Results, nil
}

// VoiceData fetches the pre-rendered voice of a stored agent turn. The
// response shape matches the synthesis wire contract.
func (c *Client) VoiceData(ctx context.Context, roomID, messageID string) (*synthesis.Result, error) {
	var response struct {
		Marks           []synthesis.Mark          `json:"marks"`
		Speech          synthesis.SpeechBytes     `json:"speech"`
		AudioParameters synthesis.AudioParameters `json:"audioParameters"`
	}
	if err := c.do(ctx, http.MethodGet, "/rooms/"+roomID+"/messages/"+messageID+"/voice", nil, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch voice data: %w", err)
	}
	return &synthesis.Result{
		CorrelationID:   messageID,
		Marks:           response.Marks,
		Audio:           []byte(response.Speech),
		AudioParameters: response.AudioParameters,
	}, nil
}

// SendMessage stores one end-user action in the room.
func (c *Client) SendMessage(ctx context.Context, roomID, endUserID string, action MessageAction) error {
	ctx, span := tracer.Start(ctx, "send room message")
	defer span.End()

	err := c.do(ctx, http.MethodPost, "/rooms/"+roomID+"/messages", sendMessageRequest{
		EndUserID: endUserID,
		Action:    action,
	}, nil)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		requestBodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error marshalling JSON: %w", err)
		}
		reader = bytes.NewBuffer(requestBodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("error unmarshalling JSON: %w", err)
		}
	}
	return nil
}
