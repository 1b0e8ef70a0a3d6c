// Package record defines the unit of data carried from ingest to delivery.
package record

// Record is a JSON-serializable key-value document. Records are owned by the
// buffer once received and must not be mutated afterwards.
type Record map[string]interface{}

// Batch is an immutable snapshot of records taken from one shard at flush time.
type Batch []Record

// Len returns the number of records in the batch.
func (b Batch) Len() int {
	return len(b)
}
