package adminsdk

import (
	"context"
	"encoding/json"
	"net/http"
)

const unknownConnectionError = "There was an unknown error while checking connection"

// TestMaterialConnection asks the server to reach the repository of material.
// It returns the server's success message.
func (c *Client) TestMaterialConnection(ctx context.Context, material json.Marshaler) (string, error) {
	resp, err := c.do(ctx, request{
		family: MaterialTest.Family, method: http.MethodPost,
		path: MaterialTest.Path, version: MaterialTest.Version, body: material,
	})
	if err != nil {
		if apiErr, ok := AsAPIError(err); ok && apiErr.Message == http.StatusText(apiErr.StatusCode) {
			apiErr.Message = unknownConnectionError
		}
		return "", err
	}
	var doc struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.body, &doc); err != nil {
		return "", err
	}
	return doc.Message, nil
}
