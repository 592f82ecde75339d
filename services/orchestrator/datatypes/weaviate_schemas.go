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

import (
	"github.com/weaviate/weaviate/entities/models"
)

// GetConversationChunkSchema returns the schema for the
// ConversationChunk class.
//
// # Description
//
// ConversationChunk stores one embedded document chunk scoped to a
// conversation. Vectors are supplied by the embedding client at insert
// time, so the vectorizer is "none". conversation_id is filterable to
// support per-conversation retrieval.
//
// # Example
//
//	class := GetConversationChunkSchema()
//	client.Schema().ClassCreator().WithClass(class).Do(ctx)
func GetConversationChunkSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "ConversationChunk",
		Description: "An embedded document chunk scoped to a conversation.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The chunk text used as retrieval context.",
				Tokenization: "word",
			},
			{
				Name:            "conversation_id",
				DataType:        []string{"text"},
				Description:     "The conversation this chunk belongs to.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "document_id",
				DataType:        []string{"text"},
				Description:     "Caller-supplied or content-derived document id.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "chunk_index",
				DataType:        []string{"int"},
				Description:     "Position of this chunk within its document (0-indexed).",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "metadata",
				DataType:        []string{"text"},
				Description:     "JSON-encoded caller metadata for the source document.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "ingested_at",
				DataType:        []string{"number"},
				Description:     "Timestamp (Unix ms) of when the chunk was ingested.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}
