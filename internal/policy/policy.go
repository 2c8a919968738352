// Package policy gates which command paths an invocation may run.
package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
)

// CheckCommandAllowed returns a CodeBlocked error unless commandPath is in
// allowlist. An empty allowlist allows everything.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		allowed = normalize(allowed)
		if allowed == normPath || strings.HasPrefix(normPath, allowed+" ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy: "+normPath)
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
