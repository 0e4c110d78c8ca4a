package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cert-checker/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
)

const maxDomainsPerCall = 200

type handlers struct {
	checker   *service.CheckerService
	inspector *service.InspectorService
}

func (h *handlers) checkCertificates(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	domains, err := toStrings(args["domains"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(domains) > maxDomainsPerCall {
		return mcp.NewToolResultError(fmt.Sprintf("too many domains: %d (max %d)", len(domains), maxDomainsPerCall)), nil
	}

	return jsonResult(h.checker.CheckAll(domains))
}

func (h *handlers) inspectCertificate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	target, _ := args["domain"].(string)
	if target == "" {
		return mcp.NewToolResultError("domain is required"), nil
	}

	port := 0
	if p, ok := args["port"]; ok {
		v, err := toInt(p)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid port: %v", err)), nil
		}
		port = v
	}
	withWhois := true
	if w, ok := args["whois"].(bool); ok {
		withWhois = w
	}

	result, err := h.inspector.InspectDomain(ctx, target, port, withWhois)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func toStrings(v any) ([]string, error) {
	switch val := v.(type) {
	case []string:
		return val, nil
	case []any:
		out := make([]string, 0, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("domains[%d] is %T, expected string", i, item)
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("domains is required")
	default:
		return nil, fmt.Errorf("domains must be an array of strings, got %T", v)
	}
}

func toInt(v any) (int, error) {
	switch val := v.(type) {
	case float64:
		return int(val), nil
	case int:
		return val, nil
	case string:
		return strconv.Atoi(val)
	case json.Number:
		n, err := val.Int64()
		return int(n), err
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}

func jsonResult(data any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to serialize result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
