package mcp

import (
	mcpclient "github.com/mark3labs/mcp-go/client"
)

// sseHeaders builds the API-key header map SSE connections authenticate
// with (§6 "Remote tools use... API-key header authentication").
func sseHeaders(apiKey string) map[string]string {
	if apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + apiKey}
}

// streamableOpts builds the same API-key header for the streamable-HTTP
// transport, whose client constructor takes functional options instead
// of a header map.
func streamableOpts(apiKey string) []mcpclient.StreamableHTTPCOption {
	if apiKey == "" {
		return nil
	}
	return []mcpclient.StreamableHTTPCOption{
		mcpclient.WithHTTPHeaders(map[string]string{"Authorization": "Bearer " + apiKey}),
	}
}
