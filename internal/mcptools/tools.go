package mcptools

import (
	"cert-checker/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func RegisterTools(s *server.MCPServer, checker *service.CheckerService, inspector *service.InspectorService) {
	h := &handlers{checker: checker, inspector: inspector}

	s.AddTool(
		mcp.NewTool("check_certificates",
			mcp.WithDescription("Check the TLS certificate expiry of one or more domains. Returns one result per domain in input order with status, expiry date and days left, or an error message."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithArray("domains",
				mcp.Required(),
				mcp.Description("Domains to check, e.g. example.com or https://example.com/path"),
				mcp.WithStringItems(),
			),
		),
		h.checkCertificates,
	)

	s.AddTool(
		mcp.NewTool("inspect_certificate",
			mcp.WithDescription("Fetch the full certificate of a host even if it is untrusted: issuer, subject, SANs, validity, TLS version, hostname match, chain verification error and domain registration expiry."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithString("domain", mcp.Required(), mcp.Description("Host name to inspect")),
			mcp.WithNumber("port", mcp.Description("TLS port (default 443)")),
			mcp.WithBoolean("whois", mcp.Description("Look up domain registration expiry (default true)")),
		),
		h.inspectCertificate,
	)
}
