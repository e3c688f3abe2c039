package session

import (
	"testing"
	"time"

	"qr-attendance-svc/src/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestSessionIndexes(t *testing.T) {
	indexes := sessionIndexes()
	require.Len(t, indexes, 3)

	oneActive := indexes[1]
	assert.Equal(t, bson.D{{Key: "subject_id", Value: 1}}, oneActive.Keys)
	require.NotNil(t, oneActive.Options)
	assert.Equal(t, "one_active_per_subject", *oneActive.Options.Name)
	assert.True(t, *oneActive.Options.Unique)
	assert.Equal(t, bson.M{"status": models.SessionActive}, oneActive.Options.PartialFilterExpression)
}

func TestSessionUpdateDocuments(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		got  bson.M
		want bson.M
	}{
		{
			name: "active filter",
			got:  activeFilter("s1"),
			want: bson.M{"_id": "s1", "status": models.SessionActive},
		},
		{
			name: "rotate",
			got:  rotateUpdate("token-1", at),
			want: bson.M{
				"$set": bson.M{"current_token": "token-1", "rotated_at": at},
				"$inc": bson.M{"rotation_count": 1},
			},
		},
		{
			name: "stop",
			got:  stopUpdate(at),
			want: bson.M{
				"$set": bson.M{"status": models.SessionStopped, "stopped_at": at},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestStopUpdateLeavesTokenFrozen(t *testing.T) {
	set := stopUpdate(time.Now())["$set"].(bson.M)
	assert.NotContains(t, set, "current_token")
	assert.NotContains(t, set, "rotation_count")
}

func TestSessionDecodeIgnoresAdmissionMark(t *testing.T) {
	raw, err := bson.Marshal(bson.M{
		"_id":               "s1",
		"subject_id":        "math",
		"current_token":     "token-0",
		"status":            models.SessionActive,
		"last_admission_at": time.Now().UTC(),
	})
	require.NoError(t, err)

	var s models.Session
	require.NoError(t, bson.Unmarshal(raw, &s))
	assert.Equal(t, "s1", s.ID)
	assert.True(t, s.IsActive())
}
