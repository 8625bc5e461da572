package synthesis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Client converts agent text into speech audio plus timing marks through a
// stateless REST call. The client holds no turn-ordering state; reassembly of
// out-of-order completions is entirely the caller's concern.
type Client struct {
	url        string
	apiKey     string
	personaID  string
	language   string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithLanguage(language string) ClientOption {
	return func(c *Client) { c.language = language }
}

func WithPersonaID(personaID string) ClientOption {
	return func(c *Client) { c.personaID = personaID }
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

func NewClient(url, apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		url:      url,
		apiKey:   apiKey,
		language: "en-US",
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type requestBody struct {
	Text      string `json:"text"`
	Language  string `json:"language"`
	PersonaID string `json:"personaId,omitempty"`
}

type responseBody struct {
	Marks           []Mark          `json:"marks"`
	Speech          SpeechBytes     `json:"speech"`
	AudioParameters AudioParameters `json:"audioParameters"`
}

// SpeechBytes accepts either a base64 string or a raw JSON byte array; both
// encodings are produced by deployed synthesis backends.
type SpeechBytes []byte

func (s *SpeechBytes) UnmarshalJSON(data []byte) error {
	var encoded string
	if err := json.Unmarshal(data, &encoded); err == nil {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("failed to decode base64 speech: %w", err)
		}
		*s = decoded
		return nil
	}

	// encoding/json only decodes []byte from base64 strings, so the array
	// form needs an explicit element type.
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal speech bytes: %w", err)
	}
	decoded := make([]byte, len(raw))
	for i, v := range raw {
		if v < 0 || v > 0xFF {
			return fmt.Errorf("speech byte at index %d out of range: %d", i, v)
		}
		decoded[i] = byte(v)
	}
	*s = decoded
	return nil
}

// Process synthesizes speech for the given text. Network failure propagates
// as an error to the caller; no retry is attempted here.
func (c *Client) Process(ctx context.Context, text string, correlationID string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()
	span.SetAttributes(
		attribute.String("synthesis.correlation_id", correlationID),
		attribute.Int("synthesis.text_length", len(text)),
	)

	requestBodyBytes, err := json.Marshal(requestBody{
		Text:      text,
		Language:  c.language,
		PersonaID: c.personaID,
	})
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var body responseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		err = fmt.Errorf("error unmarshalling JSON: %w", err)
		span.RecordError(err)
		return nil, err
	}

	logger.DebugContext(ctx, "speech synthesized",
		"correlation_id", correlationID,
		"marks", len(body.Marks),
		"audio_bytes", len(body.Speech),
	)

	return &Result{
		CorrelationID:   correlationID,
		Marks:           body.Marks,
		Audio:           body.Speech,
		AudioParameters: body.AudioParameters,
	}, nil
}
