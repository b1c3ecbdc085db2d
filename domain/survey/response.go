// Package survey provides domain types for survey batches and responses.
package survey

import "time"

// Response represents a single free-text survey response.
// Immutable once persisted except for the processing timestamp.
type Response struct {
	id          int64
	batchID     int64
	question    string
	text        string
	embedding   []float64
	processedAt time.Time
}

// NewResponse creates a response for a new, not-yet-persisted input text.
func NewResponse(batchID int64, question, text string) Response {
	return Response{
		batchID:  batchID,
		question: question,
		text:     text,
	}
}

// ReconstructResponse recreates a response from persistence.
func ReconstructResponse(id, batchID int64, question, text string, embedding []float64, processedAt time.Time) Response {
	return Response{
		id:          id,
		batchID:     batchID,
		question:    question,
		text:        text,
		embedding:   embedding,
		processedAt: processedAt,
	}
}

// ID returns the response's database identifier.
func (r Response) ID() int64 { return r.id }

// BatchID returns the batch this response arrived in.
func (r Response) BatchID() int64 { return r.batchID }

// Question returns the survey question the response answers.
func (r Response) Question() string { return r.question }

// Text returns the raw response text.
func (r Response) Text() string { return r.text }

// Embedding returns the response's embedding vector, or nil if not yet embedded.
func (r Response) Embedding() []float64 {
	if r.embedding == nil {
		return nil
	}
	vec := make([]float64, len(r.embedding))
	copy(vec, r.embedding)
	return vec
}

// HasEmbedding returns true once an embedding has been attached.
func (r Response) HasEmbedding() bool {
	return len(r.embedding) > 0
}

// ProcessedAt returns when the response was processed.
func (r Response) ProcessedAt() time.Time { return r.processedAt }

// WithID returns a copy of the response with the specified ID.
func (r Response) WithID(id int64) Response {
	r.id = id
	return r
}

// WithEmbedding returns a copy of the response with the embedding attached
// and the processing timestamp set.
func (r Response) WithEmbedding(embedding []float64) Response {
	vec := make([]float64, len(embedding))
	copy(vec, embedding)
	r.embedding = vec
	r.processedAt = time.Now()
	return r
}
