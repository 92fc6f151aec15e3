package queue

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/rwavault/internal/model"
)

func TestReconcileTaskCarriesRecord(t *testing.T) {
	rec := model.AssetRecord{
		ID:          "id-1",
		ContentHash: "afa27b44",
		FileName:    "deed.pdf",
		MetadataURI: "ipfs://afa27b44",
		Owner:       "0xabc",
		TokenID:     12,
		TxHash:      "0xfeed",
		Timestamp:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	task, err := NewReconcileTask(rec)
	require.NoError(t, err)
	assert.Equal(t, ReconcileTask, task.Type())

	payload, err := DecodeReconcile(task)
	require.NoError(t, err)
	assert.Equal(t, rec, payload.Record)
}

func TestTaskID(t *testing.T) {
	assert.Equal(t, "reconcile:42", TaskID(42))
}

func TestDecodeReconcileRejectsBadPayload(t *testing.T) {
	_, err := DecodeReconcile(asynq.NewTask(ReconcileTask, []byte("{")))
	require.Error(t, err)
	_, err = DecodeReconcile(asynq.NewTask(ReconcileTask, []byte(`{"record":{}}`)))
	require.Error(t, err)
}
