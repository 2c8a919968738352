package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/faucetbot/internal/config"
	"github.com/ggonzalez94/faucetbot/internal/model"
)

func TestRenderJSONSelectResultsOnly(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []map[string]any{{"operation_id": "op_1", "status": "confirmed"}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"status"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out[0]["status"] != "confirmed" {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if _, ok := out[0]["operation_id"]; ok {
		t.Fatalf("field projection failed: %s", buf.String())
	}
}

func TestRenderJSONEnvelope(t *testing.T) {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    map[string]any{"symbol": "USDC"},
		Meta:    model.EnvelopeMeta{Command: "prices", Cache: model.CacheStatus{Status: "hit"}},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "json"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var decoded model.Envelope
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if !decoded.Success || decoded.Meta.Cache.Status != "hit" || decoded.Meta.Command != "prices" {
		t.Fatalf("unexpected envelope: %s", buf.String())
	}
}

func TestRenderPlainFlattensNestedFields(t *testing.T) {
	env := model.Envelope{
		Success:  true,
		Data:     []map[string]any{{"symbol": "WSTETH", "price": map[string]any{"min": 1, "max": 2}}},
		Warnings: []string{"served from stale cache"},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "price.max=2 price.min=1 symbol=WSTETH") {
		t.Fatalf("unexpected plain output: %s", got)
	}
	if !strings.Contains(got, "warning: served from stale cache") {
		t.Fatalf("expected warning line: %s", got)
	}
}

func TestRenderPlainKeepsSelectOrder(t *testing.T) {
	env := model.Envelope{
		Success: true,
		Data:    map[string]any{"a": 1, "b": 2, "c": 3},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain", SelectFields: []string{"c", "a"}, ResultsOnly: true}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "c=3 a=1" {
		t.Fatalf("unexpected plain output: %q", buf.String())
	}
}

func TestRenderPlainError(t *testing.T) {
	env := model.Envelope{
		Success: false,
		Error:   &model.ErrorBody{Code: 24, Type: "not_found", Message: "operation not found: op_x"},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "error[24 not_found]: operation not found: op_x" {
		t.Fatalf("unexpected error line: %q", buf.String())
	}
}
