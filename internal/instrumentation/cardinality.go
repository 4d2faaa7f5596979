package instrumentation

import "strings"

const unknownDomain = "unknown"

// ExtractUserDomain reduces an address to its domain so it can be used as a
// metric label. Anything that is not local@domain maps to "unknown".
func ExtractUserDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return unknownDomain
	}
	return strings.ToLower(domain)
}

// Google API operation labels.
const (
	OperationList       = "list"
	OperationGet        = "get"
	OperationAttachment = "attachment"
	OperationSend       = "send"
	OperationDraft      = "draft"
	OperationExchange   = "exchange"
	OperationUserInfo   = "userinfo"
)
