package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/google/uuid"
)

const (
	counterSuffix = "#counters"
	uniqueSuffix  = "#unique"

	conditionalCheckFailed = "ConditionalCheckFailed"
)

// DynamoStore stores documents in a single DynamoDB table keyed by
// collection path (partition) and document id (sort).
// Admission counters and unique markers live in the same table under
// "<collection>#counters" and "<collection>#unique" partitions.
type DynamoStore struct {
	client       *dynamodb.Client
	streams      *dynamodbstreams.Client
	tableName    string
	pollInterval time.Duration
}

// dynamoDocument represents the DynamoDB item structure
type dynamoDocument struct {
	Collection string         `dynamodbav:"collection"`
	ID         string         `dynamodbav:"id"`
	Data       map[string]any `dynamodbav:"data"`
	CountKey   string         `dynamodbav:"count_key,omitempty"`
	UniqueKey  string         `dynamodbav:"unique_key,omitempty"`
	CreatedAt  string         `dynamodbav:"created_at"`
}

func NewDynamoStore(client *dynamodb.Client, streams *dynamodbstreams.Client, tableName string) *DynamoStore {
	return &DynamoStore{
		client:       client,
		streams:      streams,
		tableName:    tableName,
		pollInterval: time.Second,
	}
}

// LoadDynamoClients builds the table and stream clients from the default AWS
// config chain. A non-empty endpoint points both at a local emulator.
func LoadDynamoClients(ctx context.Context, region, endpoint string) (*dynamodb.Client, *dynamodbstreams.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	streams := dynamodbstreams.NewFromConfig(cfg, func(o *dynamodbstreams.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return client, streams, nil
}

// EnsureTable creates the documents table with a KEYS_ONLY stream if it does not exist
func (s *DynamoStore) EnsureTable(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe table: %w", err)
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("collection"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("collection"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("id"), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
		StreamSpecification: &types.StreamSpecification{
			StreamEnabled:  aws.Bool(true),
			StreamViewType: types.StreamViewTypeKeysOnly,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tableName)}, 2*time.Minute); err != nil {
		return fmt.Errorf("failed waiting for table: %w", err)
	}
	return nil
}

// Create puts a document under a generated id
func (s *DynamoStore) Create(ctx context.Context, collectionPath string, record any) (string, error) {
	ref, err := ParsePath(collectionPath)
	if err != nil {
		return "", err
	}
	item, id, err := s.newItem(ref.String(), record, Admission{})
	if err != nil {
		return "", writeErr("create", ref.String(), err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return "", writeErr("create", ref.String(), err)
	}
	return id, nil
}

// CreateAdmitted writes the document, the counter increment and the unique
// marker in one transaction. A failed condition on the marker or the counter
// cancels the whole write.
func (s *DynamoStore) CreateAdmitted(ctx context.Context, collectionPath string, record any, adm Admission) (string, error) {
	ref, err := ParsePath(collectionPath)
	if err != nil {
		return "", err
	}
	key := ref.String()
	if adm.CountKey != "" && adm.Limit <= 0 {
		// an absent counter passes the condition, so nothing is written
		return "", adm.check(
			func() (bool, error) { return s.markerExists(ctx, key, adm.UniqueKey) },
			func() (int, error) { return 0, nil },
		)
	}

	item, id, err := s.newItem(key, record, adm)
	if err != nil {
		return "", writeErr("create", key, err)
	}

	var writes []types.TransactWriteItem
	uniqueIdx, countIdx := -1, -1

	if adm.UniqueKey != "" {
		uniqueIdx = len(writes)
		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(s.tableName),
				Item: map[string]types.AttributeValue{
					"collection": &types.AttributeValueMemberS{Value: key + uniqueSuffix},
					"id":         &types.AttributeValueMemberS{Value: adm.UniqueKey},
					"doc_id":     &types.AttributeValueMemberS{Value: id},
				},
				ConditionExpression: aws.String("attribute_not_exists(id)"),
			},
		})
	}

	if adm.CountKey != "" {
		countIdx = len(writes)
		writes = append(writes, types.TransactWriteItem{
			Update: &types.Update{
				TableName:           aws.String(s.tableName),
				Key:                 counterKey(key, adm.CountKey),
				UpdateExpression:    aws.String("ADD #n :one"),
				ConditionExpression: aws.String("attribute_not_exists(#n) OR #n < :limit"),
				ExpressionAttributeNames: map[string]string{
					"#n": "n",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":one":   &types.AttributeValueMemberN{Value: "1"},
					":limit": &types.AttributeValueMemberN{Value: strconv.Itoa(adm.Limit)},
				},
			},
		})
	}

	writes = append(writes, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(s.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		},
	})

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			if rejected := admissionRejection(adm, canceled.CancellationReasons, uniqueIdx, countIdx); rejected != nil {
				return "", rejected
			}
		}
		return "", writeErr("create", key, err)
	}
	return id, nil
}

// Delete removes a document and releases its admission keys
func (s *DynamoStore) Delete(ctx context.Context, collectionPath, id string) error {
	ref, err := ParsePath(collectionPath)
	if err != nil {
		return err
	}
	key := ref.String()

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            documentKey(key, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return writeErr("delete", key, err)
	}
	if out.Item == nil {
		return nil
	}

	var doc dynamoDocument
	if err := attributevalue.UnmarshalMap(out.Item, &doc); err != nil {
		return writeErr("delete", key, err)
	}

	if doc.CountKey == "" && doc.UniqueKey == "" {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key:       documentKey(key, id),
		})
		if err != nil {
			return writeErr("delete", key, err)
		}
		return nil
	}

	writes := []types.TransactWriteItem{{
		Delete: &types.Delete{
			TableName:           aws.String(s.tableName),
			Key:                 documentKey(key, id),
			ConditionExpression: aws.String("attribute_exists(id)"),
		},
	}}
	if doc.CountKey != "" {
		writes = append(writes, types.TransactWriteItem{
			Update: &types.Update{
				TableName:        aws.String(s.tableName),
				Key:              counterKey(key, doc.CountKey),
				UpdateExpression: aws.String("ADD #n :minus"),
				ExpressionAttributeNames: map[string]string{
					"#n": "n",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":minus": &types.AttributeValueMemberN{Value: "-1"},
				},
			},
		})
	}
	if doc.UniqueKey != "" {
		writes = append(writes, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(s.tableName),
				Key:       documentKey(key+uniqueSuffix, doc.UniqueKey),
			},
		})
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) && reasonFailed(canceled.CancellationReasons, 0) {
			// deleted concurrently; its keys were released by that delete
			return nil
		}
		return writeErr("delete", key, err)
	}
	return nil
}

// GetAll queries the collection partition and filters in memory
func (s *DynamoStore) GetAll(ctx context.Context, collectionPath string, filters ...Filter) ([]Document, error) {
	ref, err := ParsePath(collectionPath)
	if err != nil {
		return nil, err
	}
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	return s.query(ctx, ref.String(), filters)
}

// GetOne returns a document by id
func (s *DynamoStore) GetOne(ctx context.Context, collectionPath, id string) (Document, error) {
	ref, err := ParsePath(collectionPath)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            documentKey(ref.String(), id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, readErr("get", ref.String(), err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, ref.String(), id)
	}

	var doc dynamoDocument
	if err := attributevalue.UnmarshalMap(out.Item, &doc); err != nil {
		return nil, readErr("get", ref.String(), err)
	}
	return materialize(doc.ID, doc.Data), nil
}

func (s *DynamoStore) query(ctx context.Context, key string, filters []Filter) ([]Document, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("#c = :c"),
		ExpressionAttributeNames: map[string]string{
			"#c": "collection",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: aws.Bool(true),
	})

	var items []dynamoDocument
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, readErr("query", key, err)
		}
		for _, raw := range page.Items {
			var doc dynamoDocument
			if err := attributevalue.UnmarshalMap(raw, &doc); err != nil {
				return nil, readErr("decode", key, err)
			}
			items = append(items, doc)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt < items[j].CreatedAt
		}
		return items[i].ID < items[j].ID
	})

	docs := make([]Document, 0, len(items))
	for _, item := range items {
		doc := materialize(item.ID, item.Data)
		if matchAll(doc, filters) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (s *DynamoStore) newItem(key string, record any, adm Admission) (map[string]types.AttributeValue, string, error) {
	fields, err := toFields(record)
	if err != nil {
		return nil, "", err
	}

	id := uuid.New().String()
	item, err := attributevalue.MarshalMap(dynamoDocument{
		Collection: key,
		ID:         id,
		Data:       fields,
		CountKey:   adm.CountKey,
		UniqueKey:  adm.UniqueKey,
		CreatedAt:  time.Now().UTC().Format(sortableTime),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal document: %w", err)
	}
	return item, id, nil
}

// sortableTime is a fixed-width UTC layout so creation times order as strings
const sortableTime = "2006-01-02T15:04:05.000000000Z"

func documentKey(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"collection": &types.AttributeValueMemberS{Value: collection},
		"id":         &types.AttributeValueMemberS{Value: id},
	}
}

func counterKey(collection, countKey string) map[string]types.AttributeValue {
	return documentKey(collection+counterSuffix, countKey)
}

// reasonFailed reports whether the transact item at idx failed its condition
// markerExists reads the unique marker for uniqueKey
func (s *DynamoStore) markerExists(ctx context.Context, key, uniqueKey string) (bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            documentKey(key+uniqueSuffix, uniqueKey),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, writeErr("check unique", key, err)
	}
	return len(out.Item) > 0, nil
}

// admissionRejection maps a canceled admission transaction back to the rule
// that failed. It returns nil when the cancellation was not a failed condition
// on the marker or the counter.
func admissionRejection(adm Admission, reasons []types.CancellationReason, uniqueIdx, countIdx int) error {
	uniqueFailed := reasonFailed(reasons, uniqueIdx)
	countFailed := reasonFailed(reasons, countIdx)
	if !uniqueFailed && !countFailed {
		return nil
	}
	return adm.check(
		func() (bool, error) { return uniqueFailed, nil },
		func() (int, error) {
			if countFailed {
				return adm.Limit, nil
			}
			return 0, nil
		},
	)
}

func reasonFailed(reasons []types.CancellationReason, idx int) bool {
	if idx < 0 || idx >= len(reasons) {
		return false
	}
	return aws.ToString(reasons[idx].Code) == conditionalCheckFailed
}
