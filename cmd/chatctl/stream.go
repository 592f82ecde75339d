// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// streamPayload is the JSON body carried by one SSE frame.
type streamPayload struct {
	Content        string `json:"content"`
	Model          string `json:"model"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Status         string `json:"status"`
	Error          string `json:"error"`
	Retry          int64  `json:"retry"`
}

// StreamResult is the outcome of consuming one chat stream.
type StreamResult struct {
	Answer         string
	ConversationID string
	UserID         string
}

// StreamProcessor consumes an SSE chat stream, writing tokens to out
// as they arrive.
type StreamProcessor struct {
	out io.Writer
}

func NewStreamProcessor(out io.Writer) *StreamProcessor {
	return &StreamProcessor{out: out}
}

// Process reads SSE frames until the terminal event. An "error" event
// or a stream that ends without a terminal event yields an error.
func (p *StreamProcessor) Process(reader io.Reader) (*StreamResult, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	result := &StreamResult{}
	var answer strings.Builder
	eventType := ""
	var dataLines []string

	dispatch := func() (bool, error) {
		if eventType == "" && len(dataLines) == 0 {
			return false, nil
		}
		var payload streamPayload
		raw := strings.Join(dataLines, "\n")
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return false, fmt.Errorf("malformed stream payload: %w", err)
		}

		switch eventType {
		case "message":
			answer.WriteString(payload.Content)
			fmt.Fprint(p.out, payload.Content)
			if payload.ConversationID != "" {
				result.ConversationID = payload.ConversationID
			}
			return false, nil
		case "end":
			result.Answer = answer.String()
			result.ConversationID = payload.ConversationID
			result.UserID = payload.UserID
			fmt.Fprintln(p.out)
			return true, nil
		case "error":
			fmt.Fprintln(p.out)
			return true, fmt.Errorf("stream failed: %s (retry in %dms)",
				payload.Error, payload.Retry)
		default:
			// Unknown event types are skipped for forward compatibility.
			return false, nil
		}
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.TrimSpace(line) == "":
			done, err := dispatch()
			if err != nil {
				return nil, err
			}
			if done {
				return result, nil
			}
			eventType = ""
			dataLines = nil
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		case strings.HasPrefix(line, ":"):
			// Keep-alive comment.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read failed: %w", err)
	}
	return nil, fmt.Errorf("stream ended without a terminal event")
}
