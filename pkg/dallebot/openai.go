package dallebot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// openaiClient is a minimal client for the OpenAI REST API, covering moderation and image generation
type openaiClient struct {
	apiKey  string
	baseURL string

	client *http.Client
}

func newOpenaiClient(apiKey string) *openaiClient {
	return &openaiClient{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com",

		// Image generation can take a while
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

// An apiError is an error response of the OpenAI API
type apiError struct {
	StatusCode int

	Type    string
	Message string
}

func (e *apiError) Error() string {
	return e.Message
}

// userFacing reports whether the error's message is safe and useful to relay to the chat.
// This covers prompts the API rejects and API-side rate limits, mirroring which error classes the bot forwards verbatim.
func (e *apiError) userFacing() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Type == "invalid_request_error"
}

// post sends the passed payload to the passed API path and unmarshals the response into result, if non-nil.
// Non-2xx responses are returned as an *apiError
func (o *openaiClient) post(ctx context.Context, path string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	res, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var errRes struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(res.Body).Decode(&errRes); err != nil || errRes.Error.Message == "" {
			return &apiError{
				StatusCode: res.StatusCode,
				Message:    fmt.Sprintf("openai request to %s failed with status %d", path, res.StatusCode),
			}
		}
		return &apiError{
			StatusCode: res.StatusCode,

			Type:    errRes.Error.Type,
			Message: errRes.Error.Message,
		}
	}

	if result != nil {
		return json.NewDecoder(res.Body).Decode(result)
	}
	return nil
}

// moderatePrompt checks the passed prompt against the moderation endpoint and reports whether it was flagged
func (o *openaiClient) moderatePrompt(ctx context.Context, prompt string) (bool, error) {
	var res struct {
		Results []struct {
			Flagged bool `json:"flagged"`
		} `json:"results"`
	}

	if err := o.post(ctx, "/v1/moderations", map[string]any{"input": prompt}, &res); err != nil {
		return false, err
	}
	if len(res.Results) == 0 {
		return false, fmt.Errorf("moderation response contained no results")
	}

	return res.Results[0].Flagged, nil
}

// generateImage requests a single generated image of size*size pixels and returns its URL.
// The passed user is an anonymised identifier forwarded to the API for abuse tracking
func (o *openaiClient) generateImage(ctx context.Context, prompt string, size int, user string) (string, error) {
	var res struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}

	payload := map[string]any{
		"prompt": prompt,
		"n":      1,
		"size":   fmt.Sprintf("%dx%d", size, size),
		"user":   user,
	}
	if err := o.post(ctx, "/v1/images/generations", payload, &res); err != nil {
		return "", err
	}
	if len(res.Data) == 0 {
		return "", fmt.Errorf("image generation response contained no images")
	}

	return res.Data[0].URL, nil
}
