package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLogEntry(t *testing.T) {
	t.Run("Valid Upload", func(t *testing.T) {
		payload := []byte(`{
			"id": "log-1",
			"device_id": "dev-1",
			"tenant_id": "tenant-1",
			"content": "boot complete",
			"uploaded_at": "2024-03-15T10:30:00Z"
		}`)

		entry, err := decodeLogEntry(payload)
		require.NoError(t, err)
		assert.Equal(t, "log-1", entry.ID)
		assert.Equal(t, "dev-1", entry.DeviceID)
		assert.Equal(t, "boot complete", entry.Content)
		assert.Equal(t, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), entry.UploadedAt)
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		entry, err := decodeLogEntry([]byte(`{"device_id": "dev-1"`))
		require.Error(t, err)
		assert.Nil(t, entry)
	})

	t.Run("Missing Device", func(t *testing.T) {
		entry, err := decodeLogEntry([]byte(`{"id": "log-1", "content": "orphaned"}`))
		require.ErrorIs(t, err, errMissingDeviceID)
		assert.Nil(t, entry)
	})
}
