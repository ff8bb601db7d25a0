package database

import (
	"encoding/json"
	"fmt"
	"phicontext/internal/models"
)

// RecordSealer encrypts snapshot records at rest, keyed by record ID
type RecordSealer interface {
	Seal(recordID string, plaintext []byte) (string, error)
	Open(recordID string, sealed string) ([]byte, error)
}

// StoreOption configures a snapshot store
type StoreOption func(*recordCodec)

// WithRecordSealer encrypts every stored record with sealer
func WithRecordSealer(sealer RecordSealer) StoreOption {
	return func(c *recordCodec) {
		c.sealer = sealer
	}
}

// recordCodec turns entries into stored strings: plain JSON, or sealed JSON when a sealer is set
type recordCodec struct {
	sealer RecordSealer
}

func newRecordCodec(opts []StoreOption) recordCodec {
	var c recordCodec
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c recordCodec) encode(e *models.ContextEntry) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to encode entry %s: %w", e.ID, err)
	}
	if c.sealer == nil {
		return string(data), nil
	}

	sealed, err := c.sealer.Seal(e.ID, data)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt entry %s: %w", e.ID, err)
	}
	return sealed, nil
}

func (c recordCodec) decode(id, record string) (models.ContextEntry, error) {
	var e models.ContextEntry

	data := []byte(record)
	if c.sealer != nil {
		opened, err := c.sealer.Open(id, record)
		if err != nil {
			return e, fmt.Errorf("failed to decrypt entry %s: %w", id, err)
		}
		data = opened
	}

	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("failed to decode entry %s: %w", id, err)
	}
	return e, nil
}
