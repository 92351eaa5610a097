// internal/clients/identity_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"bookswap/internal/auth"
)

// IdentityClient verifies tokens by calling the identity service.
type IdentityClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{baseURL: baseURL, httpClient: http.DefaultClient}
}

// Verify implements auth.Verifier. Any failure to obtain an answer from the
// identity service is reported as auth.ErrVerifierUnavailable.
func (c *IdentityClient) Verify(ctx context.Context, token string) (auth.Result, error) {
	body, err := json.Marshal(struct {
		Token string `json:"token"`
	}{Token: token})
	if err != nil {
		return auth.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/validate", bytes.NewBuffer(body))
	if err != nil {
		return auth.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return auth.Result{}, fmt.Errorf("%w: %v", auth.ErrVerifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return auth.Result{}, fmt.Errorf("%w: unexpected status code: %d", auth.ErrVerifierUnavailable, resp.StatusCode)
	}

	var result auth.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return auth.Result{}, fmt.Errorf("%w: decode response: %v", auth.ErrVerifierUnavailable, err)
	}
	return result, nil
}
