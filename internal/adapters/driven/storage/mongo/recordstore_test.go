package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/custodia-labs/eventvault/internal/core/domain"
)

func TestFilterQuery(t *testing.T) {
	t.Run("identifier present uses or", func(t *testing.T) {
		q := filterQuery(domain.Filter{
			Identifier: "abc",
			Device:     "meter-1",
			Date:       1700000000000,
			EventType:  "reading",
		})

		or, ok := q["$or"].(bson.A)
		require.True(t, ok)
		require.Len(t, or, 2)
		assert.Equal(t, bson.M{domain.FieldIdentifier: "abc"}, or[0])
	})

	t.Run("blank identifier falls back", func(t *testing.T) {
		q := filterQuery(domain.Filter{Device: "meter-1", Date: 1700000000000})

		_, hasOr := q["$or"]
		assert.False(t, hasOr)
		assert.Equal(t, "meter-1", q[domain.FieldDevice])
	})
}

func TestDocumentRoundTrip(t *testing.T) {
	oid := primitive.NewObjectID()

	rec := domain.NewRecord()
	rec.ID = oid.Hex()
	rec.Identifier = "abc"
	rec.Device = "meter-1"
	rec.Date = 1700000000000
	rec.EventType = "reading"
	rec.App = "uploader"
	rec.Extra = map[string]any{"notes": "x"}

	doc := toDocument(rec)
	assert.Equal(t, oid, doc["_id"])
	assert.Equal(t, "abc", doc[domain.FieldIdentifier])
	assert.Equal(t, "x", doc["notes"])

	got := fromDocument(doc)
	assert.Equal(t, rec, got)
}

func TestToDocument_NonHexIDOmitted(t *testing.T) {
	rec := domain.NewRecord()
	rec.ID = "not-an-object-id"
	rec.Identifier = "abc"

	doc := toDocument(rec)

	_, hasID := doc["_id"]
	assert.False(t, hasID)
}

func TestIDToString(t *testing.T) {
	oid := primitive.NewObjectID()
	assert.Equal(t, oid.Hex(), idToString(oid))
	assert.Equal(t, "plain", idToString("plain"))
	assert.Equal(t, "7", idToString(7))
}
