// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "fmt"

// =============================================================================
// Document Upsert Types
// =============================================================================

// MaxDocumentBytes is the maximum size of a single upserted document.
const MaxDocumentBytes = 256 * 1024 // 256KB

// UpsertDocument is one document submitted to POST /upsert.
//
// # Fields
//
//   - ID: Optional caller-supplied identifier. When empty a
//     deterministic id is derived from the content hash, so
//     re-upserting the same text replaces rather than duplicates.
//   - Text: Required document body.
//   - Metadata: Optional string metadata stored alongside each chunk.
type UpsertDocument struct {
	ID       string            `json:"id,omitempty"`
	Text     string            `json:"text" validate:"required"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// UpsertRequest is the body of POST /upsert.
//
// Documents are chunked, embedded, and inserted into the vector store
// scoped to ConversationID so later retrieval can filter to one
// conversation's context.
type UpsertRequest struct {
	Documents      []UpsertDocument `json:"documents" validate:"required,min=1,dive"`
	ConversationID string           `json:"conversation_id" validate:"required,uuid4"`
}

// Validate validates the UpsertRequest fields.
func (r *UpsertRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return err
	}
	for i := range r.Documents {
		if len(r.Documents[i].Text) > MaxDocumentBytes {
			return &DocumentTooLargeError{Index: i, Size: len(r.Documents[i].Text)}
		}
	}
	return nil
}

// DocumentTooLargeError reports an upsert document over MaxDocumentBytes.
type DocumentTooLargeError struct {
	Index int
	Size  int
}

func (e *DocumentTooLargeError) Error() string {
	return fmt.Sprintf("document %d exceeds %d bytes (got %d)",
		e.Index, MaxDocumentBytes, e.Size)
}

// UpsertResponse is the success body of POST /upsert.
type UpsertResponse struct {
	Status string `json:"status"`
	Chunks int    `json:"chunks,omitempty"`
}
