package correction

import (
	"encoding/json"
	"fmt"
)

// MessageType names a request sent from a page to the background broker.
type MessageType string

const (
	CorrectText    MessageType = "CORRECT_TEXT"
	ValidateText   MessageType = "VALIDATE_TEXT"
	ConvertDialect MessageType = "CONVERT_DIALECT"
)

// Message is a page to broker request.
type Message struct {
	Type    MessageType `json:"type"`
	Text    string      `json:"text"`
	Dialect Dialect     `json:"dialect,omitempty"`
}

// Response is the single reply to a Message. Which fields are set depends
// on the message type.
type Response struct {
	CorrectedText  string         `json:"correctedText,omitempty"`
	IncorrectWords []FlaggedRange `json:"incorrectWords,omitempty"`
	ConvertedText  string         `json:"convertedText,omitempty"`
	Success        *bool          `json:"success,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// Failed reports whether the response carries an error or an explicit
// success=false.
func (r Response) Failed() bool {
	return r.Error != "" || (r.Success != nil && !*r.Success)
}

// Bool returns a pointer to b, for Response.Success.
func Bool(b bool) *bool { return &b }

// Wire payloads of the backend endpoints. The broker's HTTP transport and
// the backend handlers share them.

// TextRequest is the body of the correct and validate endpoints.
type TextRequest struct {
	Text string `json:"text"`
}

// DialectRequest is the body of the dialect endpoint.
type DialectRequest struct {
	Text    string `json:"text"`
	Dialect string `json:"dialect"`
}

// CorrectResponse is returned by the correct endpoint.
type CorrectResponse struct {
	CorrectedText string `json:"correctedText"`
}

// DialectResponse is returned by the dialect endpoint.
type DialectResponse struct {
	ConvertedText string `json:"convertedText"`
}

// ValidateResponse is returned by the validate endpoint.
type ValidateResponse struct {
	Success        bool           `json:"success"`
	IncorrectWords []FlaggedRange `json:"incorrectWords"`
}

// ErrorResponse is the body of every non-2xx backend reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DecodeIncorrectWords extracts flagged ranges from a validation payload.
// It accepts {incorrectWords:[...]} and {success, data:{incorrectWords}}.
// Entries with a missing word or non-integer indexes are dropped one by
// one instead of failing the whole payload.
func DecodeIncorrectWords(data []byte) ([]FlaggedRange, error) {
	var envelope struct {
		IncorrectWords []json.RawMessage `json:"incorrectWords"`
		Data           *struct {
			IncorrectWords []json.RawMessage `json:"incorrectWords"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("correction: decode validation: %w", err)
	}
	raw := envelope.IncorrectWords
	if raw == nil && envelope.Data != nil {
		raw = envelope.Data.IncorrectWords
	}
	return decodeRanges(raw), nil
}

// DecodeRanges decodes a JSON array of flagged ranges, dropping malformed
// entries.
func DecodeRanges(data []byte) ([]FlaggedRange, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("correction: decode ranges: %w", err)
	}
	return decodeRanges(raw), nil
}

func decodeRanges(raw []json.RawMessage) []FlaggedRange {
	out := make([]FlaggedRange, 0, len(raw))
	for _, item := range raw {
		var entry struct {
			Word        *string           `json:"word"`
			StartIndex  *json.Number      `json:"startIndex"`
			EndIndex    *json.Number      `json:"endIndex"`
			Suggestions []json.RawMessage `json:"suggestions"`
		}
		if err := json.Unmarshal(item, &entry); err != nil {
			continue
		}
		if entry.Word == nil || *entry.Word == "" || entry.StartIndex == nil || entry.EndIndex == nil {
			continue
		}
		start, err1 := entry.StartIndex.Int64()
		end, err2 := entry.EndIndex.Int64()
		if err1 != nil || err2 != nil {
			continue
		}
		r := FlaggedRange{Word: *entry.Word, StartIndex: int(start), EndIndex: int(end)}
		for _, s := range entry.Suggestions {
			var str string
			if json.Unmarshal(s, &str) == nil && str != "" {
				r.Suggestions = append(r.Suggestions, str)
			}
		}
		out = append(out, r)
	}
	return out
}
