package survey

import "time"

// Batch is one submission of survey responses answering the same question.
type Batch struct {
	id        int64
	question  string
	responses []string
}

// NewBatch creates a batch from raw input texts.
func NewBatch(id int64, question string, responses []string) Batch {
	texts := make([]string, len(responses))
	copy(texts, responses)
	return Batch{
		id:        id,
		question:  question,
		responses: texts,
	}
}

// ID returns the batch identifier.
func (b Batch) ID() int64 { return b.id }

// Question returns the survey question.
func (b Batch) Question() string { return b.question }

// Responses returns the raw response texts.
func (b Batch) Responses() []string {
	texts := make([]string, len(b.responses))
	copy(texts, b.responses)
	return texts
}

// Size returns the number of responses in the batch.
func (b Batch) Size() int { return len(b.responses) }

// BatchMetadata summarizes one processed batch. One row per batch_id,
// upsertable so a reprocessed batch overwrites its previous summary.
type BatchMetadata struct {
	batchID        int64
	question       string
	totalResponses int
	newThemes      int
	updatedThemes  int
	deletedThemes  int
	duration       time.Duration
	processedAt    time.Time
}

// NewBatchMetadata creates batch metadata from processing counters.
func NewBatchMetadata(batchID int64, question string, totalResponses, newThemes, updatedThemes, deletedThemes int, duration time.Duration) BatchMetadata {
	return BatchMetadata{
		batchID:        batchID,
		question:       question,
		totalResponses: totalResponses,
		newThemes:      newThemes,
		updatedThemes:  updatedThemes,
		deletedThemes:  deletedThemes,
		duration:       duration,
		processedAt:    time.Now(),
	}
}

// ReconstructBatchMetadata recreates batch metadata from persistence.
func ReconstructBatchMetadata(batchID int64, question string, totalResponses, newThemes, updatedThemes, deletedThemes int, duration time.Duration, processedAt time.Time) BatchMetadata {
	return BatchMetadata{
		batchID:        batchID,
		question:       question,
		totalResponses: totalResponses,
		newThemes:      newThemes,
		updatedThemes:  updatedThemes,
		deletedThemes:  deletedThemes,
		duration:       duration,
		processedAt:    processedAt,
	}
}

// BatchID returns the batch identifier (primary key).
func (m BatchMetadata) BatchID() int64 { return m.batchID }

// Question returns the survey question.
func (m BatchMetadata) Question() string { return m.question }

// TotalResponses returns how many responses the batch contained.
func (m BatchMetadata) TotalResponses() int { return m.totalResponses }

// NewThemes returns how many themes the batch created.
func (m BatchMetadata) NewThemes() int { return m.newThemes }

// UpdatedThemes returns how many theme descriptions the batch updated.
func (m BatchMetadata) UpdatedThemes() int { return m.updatedThemes }

// DeletedThemes returns how many themes left active status (merges executed).
func (m BatchMetadata) DeletedThemes() int { return m.deletedThemes }

// Duration returns the wall-clock processing time.
func (m BatchMetadata) Duration() time.Duration { return m.duration }

// ProcessedAt returns when the batch finished processing.
func (m BatchMetadata) ProcessedAt() time.Time { return m.processedAt }
