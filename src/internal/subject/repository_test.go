package subject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestSubjectIndexMatchesListOrder(t *testing.T) {
	assert.Equal(t, bson.D{
		{Key: "teacher_id", Value: 1},
		{Key: "created_at", Value: -1},
	}, subjectIndex().Keys)
}
