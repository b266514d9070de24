package store

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/stretchr/testify/assert"
)

func TestReasonFailed(t *testing.T) {
	reasons := []types.CancellationReason{
		{Code: aws.String("None")},
		{Code: aws.String(conditionalCheckFailed)},
		{Code: aws.String("None")},
	}

	assert.False(t, reasonFailed(reasons, 0))
	assert.True(t, reasonFailed(reasons, 1))
	assert.False(t, reasonFailed(reasons, 2))
	assert.False(t, reasonFailed(reasons, -1))
	assert.False(t, reasonFailed(reasons, 3))
	assert.False(t, reasonFailed(nil, 0))
}

func TestRecordTouches(t *testing.T) {
	rec := func(collection string) streamtypes.Record {
		return streamtypes.Record{
			Dynamodb: &streamtypes.StreamRecord{
				Keys: map[string]streamtypes.AttributeValue{
					"collection": &streamtypes.AttributeValueMemberS{Value: collection},
					"id":         &streamtypes.AttributeValueMemberS{Value: "x"},
				},
			},
		}
	}

	assert.True(t, recordTouches(rec("bookings"), "bookings"))
	assert.False(t, recordTouches(rec("bookings"+counterSuffix), "bookings"))
	assert.False(t, recordTouches(rec("courses/c1/instances"), "courses/c2/instances"))
	assert.False(t, recordTouches(streamtypes.Record{}, "bookings"))
}

func TestCounterKey(t *testing.T) {
	key := counterKey("bookings", "instance:i1")

	assert.Equal(t, &types.AttributeValueMemberS{Value: "bookings#counters"}, key["collection"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "instance:i1"}, key["id"])
}

func TestSortableTime_OrdersAsText(t *testing.T) {
	early := time.Date(2024, 1, 1, 9, 0, 0, 5, time.UTC).Format(sortableTime)
	late := time.Date(2024, 1, 1, 9, 0, 0, 40, time.UTC).Format(sortableTime)

	assert.Len(t, early, len(late))
	assert.Less(t, early, late)
}

func TestAdmissionRejection(t *testing.T) {
	adm := Admission{CountKey: "instance:i1", Limit: 3, UniqueKey: "i1|a@x.com"}
	failed := types.CancellationReason{Code: aws.String(conditionalCheckFailed)}
	none := types.CancellationReason{Code: aws.String("None")}

	// writes are ordered marker, counter, document
	assert.ErrorIs(t, admissionRejection(adm, []types.CancellationReason{failed, none, none}, 0, 1), ErrAlreadyExists)
	assert.ErrorIs(t, admissionRejection(adm, []types.CancellationReason{none, failed, none}, 0, 1), ErrLimitReached)
	assert.ErrorIs(t, admissionRejection(adm, []types.CancellationReason{failed, failed, none}, 0, 1), ErrAlreadyExists)
	assert.NoError(t, admissionRejection(adm, []types.CancellationReason{none, none, failed}, 0, 1))

	countOnly := Admission{CountKey: "instance:i1", Limit: 3}
	assert.ErrorIs(t, admissionRejection(countOnly, []types.CancellationReason{failed, none}, -1, 0), ErrLimitReached)
}
