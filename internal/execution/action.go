package execution

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

func NewOperationID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "op-unknown"
	}
	return fmt.Sprintf("op_%s", hex.EncodeToString(b))
}
