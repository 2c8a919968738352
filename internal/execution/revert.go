package execution

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
)

var (
	errorStringSelector = []byte{0x08, 0xc3, 0x79, 0xa0} // Error(string)
	panicSelector       = []byte{0x4e, 0x48, 0x7b, 0x71} // Panic(uint256)

	stringArgs  = mustArguments("string")
	uint256Args = mustArguments("uint256")
)

var panicReasons = map[uint64]string{
	0x01: "assertion failed",
	0x11: "arithmetic overflow or underflow",
	0x12: "division by zero",
	0x21: "invalid enum value",
	0x31: "pop on empty array",
	0x32: "array index out of bounds",
	0x41: "out of memory",
	0x51: "call to zero-initialized function",
}

// decodeRevertData turns ABI-encoded revert data into a readable reason.
// It returns "" when data is empty.
func decodeRevertData(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	selector, payload := data[:4], data[4:]
	switch {
	case bytes.Equal(selector, errorStringSelector):
		values, err := stringArgs.Unpack(payload)
		if err == nil && len(values) == 1 {
			if reason, ok := values[0].(string); ok {
				return reason
			}
		}
		return "malformed Error(string) revert"
	case bytes.Equal(selector, panicSelector):
		values, err := uint256Args.Unpack(payload)
		if err == nil && len(values) == 1 {
			if code, ok := values[0].(*big.Int); ok {
				if code.IsUint64() {
					if reason, known := panicReasons[code.Uint64()]; known {
						return fmt.Sprintf("panic: %s (0x%x)", reason, code)
					}
				}
				return fmt.Sprintf("panic: code 0x%x", code)
			}
		}
		return "malformed Panic(uint256) revert"
	default:
		return fmt.Sprintf("custom error %s", hexutil.Encode(selector))
	}
}

// decodeRevertFromError extracts revert data carried by an RPC error.
func decodeRevertFromError(err error) string {
	var dataErr interface {
		ErrorData() interface{}
	}
	if !errors.As(err, &dataErr) {
		return ""
	}
	var data []byte
	switch v := dataErr.ErrorData().(type) {
	case string:
		decoded, decodeErr := decodeHex(v)
		if decodeErr != nil {
			return ""
		}
		data = decoded
	case []byte:
		data = v
	case hexutil.Bytes:
		data = v
	default:
		return ""
	}
	return decodeRevertData(data)
}

// wrapEVMExecutionError keeps the RPC error as the cause and lifts the
// decoded revert reason, when there is one, into the message.
func wrapEVMExecutionError(code clierr.Code, message string, err error) error {
	if reason := decodeRevertFromError(err); reason != "" {
		return clierr.Wrap(code, fmt.Sprintf("%s: %s", message, reason), err)
	}
	return clierr.Wrap(code, message, err)
}

// RevertReason returns the decoded revert reason carried anywhere in err.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}
	if reason := decodeRevertFromError(err); reason != "" {
		return reason
	}
	msg := err.Error()
	if idx := strings.Index(msg, "execution reverted: "); idx >= 0 {
		return strings.TrimSpace(msg[idx+len("execution reverted: "):])
	}
	return ""
}

func normalizeTxHash(raw string) (common.Hash, bool) {
	clean := strings.TrimSpace(raw)
	if !strings.HasPrefix(clean, "0x") && !strings.HasPrefix(clean, "0X") {
		return common.Hash{}, false
	}
	buf, err := hex.DecodeString(clean[2:])
	if err != nil || len(buf) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(buf), true
}

func decodeHex(v string) ([]byte, error) {
	clean := strings.TrimSpace(v)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}

func mustArguments(typ string) abi.Arguments {
	t, err := abi.NewType(typ, "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}
