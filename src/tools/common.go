package tools

import (
	"errors"
	"fmt"
	"strings"

	"deribit-gateway/src/models"
	"deribit-gateway/src/upstream"
)

// -----------------------------------------------------------------------------
// Shared handler plumbing
// -----------------------------------------------------------------------------

func asErr[T error](err error, target *T) bool {
	return errors.As(err, target)
}

// ErrorEnvelope converts a handler failure into the structured tool-level
// error payload. Messages are capped at 100 characters.
func ErrorEnvelope(err error, notes []string) *models.MErrorResponse {
	ue := upstream.AsError(err)
	msg := ue.Message
	if msg == "" {
		msg = err.Error()
	}
	if len(msg) > 100 {
		msg = msg[:100]
	}

	env := &models.MErrorResponse{
		Error:     true,
		ErrorCode: ue.Code,
		Message:   msg,
		Notes:     capNotes(append(notes, "kind:"+ue.Kind.String())),
	}
	if env.ErrorCode == 0 {
		env.ErrorCode = -1
	}
	if ue.RetryAfter > 0 {
		ms := ue.RetryAfter.Milliseconds()
		env.RetryAfterMs = &ms
	}
	return env
}

func capNotes(notes []string) []string {
	if notes == nil {
		return []string{}
	}
	if len(notes) > models.MaxNotes {
		notes = notes[:models.MaxNotes]
	}
	return notes
}

// normalizeCurrency accepts btc/eth in any case, defaulting to BTC.
func normalizeCurrency(ccy string) (string, error) {
	if ccy == "" {
		return "BTC", nil
	}
	up := strings.ToUpper(ccy)
	if up != "BTC" && up != "ETH" {
		return "", fmt.Errorf("unsupported currency %q (use BTC or ETH)", ccy)
	}
	return up, nil
}

// objectSchema builds the input-schema map for tools/list.
func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func enumProp(description string, values ...string) map[string]interface{} {
	vals := make([]interface{}, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return map[string]interface{}{"type": "string", "description": description, "enum": vals}
}
