package store

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
)

// Subscribe tails the table stream and re-queries the collection whenever a
// record touches its partition. A stream failure ends the subscription.
func (s *DynamoStore) Subscribe(ctx context.Context, path string, filters ...Filter) (*Subscription, error) {
	ref, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	key := ref.String()

	desc, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err != nil {
		return nil, readErr("subscribe", key, err)
	}
	if desc.Table == nil || desc.Table.LatestStreamArn == nil {
		return nil, readErr("subscribe", key, errors.New("streams are not enabled on table"))
	}

	watcher := &streamWatcher{
		client:    s.streams,
		streamArn: aws.ToString(desc.Table.LatestStreamArn),
		iterators: make(map[string]*string),
		seen:      make(map[string]bool),
	}

	sub := newSubscription(ctx, key)
	sub.start(func(ctx context.Context, emit func([]Document) bool) error {
		// open iterators before the first read so no change falls between them
		if err := watcher.refresh(ctx, true); err != nil {
			return readErr("subscribe", key, err)
		}

		docs, err := s.query(ctx, key, filters)
		if err != nil {
			return err
		}
		if !emit(docs) {
			return nil
		}

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}

			changed, err := watcher.poll(ctx, key)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return readErr("subscribe", key, err)
			}
			if !changed {
				continue
			}

			docs, err := s.query(ctx, key, filters)
			if err != nil {
				return err
			}
			if !emit(docs) {
				return nil
			}
		}
	})
	return sub, nil
}

// streamWatcher follows every open shard of one table stream
type streamWatcher struct {
	client    *dynamodbstreams.Client
	streamArn string
	iterators map[string]*string // shard id -> next iterator
	seen      map[string]bool
}

// refresh opens iterators for shards not yet followed. On the first call open
// shards start at LATEST; shards found later are children of closed ones and
// are read from TRIM_HORIZON.
func (w *streamWatcher) refresh(ctx context.Context, initial bool) error {
	var lastShard *string
	for {
		out, err := w.client.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
			StreamArn:             aws.String(w.streamArn),
			ExclusiveStartShardId: lastShard,
		})
		if err != nil {
			return err
		}
		if out.StreamDescription == nil {
			return nil
		}

		for _, shard := range out.StreamDescription.Shards {
			id := aws.ToString(shard.ShardId)
			if w.seen[id] {
				continue
			}
			w.seen[id] = true

			closed := shard.SequenceNumberRange != nil && shard.SequenceNumberRange.EndingSequenceNumber != nil
			if initial && closed {
				continue
			}

			iteratorType := streamtypes.ShardIteratorTypeTrimHorizon
			if initial {
				iteratorType = streamtypes.ShardIteratorTypeLatest
			}
			it, err := w.client.GetShardIterator(ctx, &dynamodbstreams.GetShardIteratorInput{
				StreamArn:         aws.String(w.streamArn),
				ShardId:           shard.ShardId,
				ShardIteratorType: iteratorType,
			})
			if err != nil {
				return err
			}
			w.iterators[id] = it.ShardIterator
		}

		lastShard = out.StreamDescription.LastEvaluatedShardId
		if lastShard == nil {
			return nil
		}
	}
}

// poll reads each followed shard once and reports whether any record touched key
func (w *streamWatcher) poll(ctx context.Context, key string) (bool, error) {
	changed := false
	shardClosed := false

	for id, it := range w.iterators {
		out, err := w.client.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{
			ShardIterator: it,
		})
		if err != nil {
			var expired *streamtypes.ExpiredIteratorException
			if errors.As(err, &expired) {
				// re-open from the shard head; treat as a change so nothing is missed
				log.Printf("[Store] Shard iterator expired for %s, reopening", id)
				delete(w.iterators, id)
				delete(w.seen, id)
				shardClosed = true
				changed = true
				continue
			}
			return false, err
		}

		for _, rec := range out.Records {
			if recordTouches(rec, key) {
				changed = true
			}
		}

		if out.NextShardIterator == nil {
			delete(w.iterators, id)
			shardClosed = true
		} else {
			w.iterators[id] = out.NextShardIterator
		}
	}

	if shardClosed {
		if err := w.refresh(ctx, false); err != nil {
			return false, err
		}
	}
	return changed, nil
}

// recordTouches reports whether a stream record belongs to the collection partition
func recordTouches(rec streamtypes.Record, key string) bool {
	if rec.Dynamodb == nil {
		return false
	}
	v, ok := rec.Dynamodb.Keys["collection"].(*streamtypes.AttributeValueMemberS)
	return ok && v.Value == key
}
