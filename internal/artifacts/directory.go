// Package artifacts reads and rewrites artifact ownership records in DynamoDB.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/lockplane/ownershift/internal/planner"
)

// batchGetLimit is the DynamoDB BatchGetItem key limit per request.
const batchGetLimit = 100

const (
	maxUnprocessedRetries = 8
	maxUnprocessedBackoff = 5 * time.Second
)

// DynamoAPI is the subset of the DynamoDB client the directory uses.
type DynamoAPI interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Schema names the attributes of the artifact table.
type Schema struct {
	IDAttribute        string
	OwnerAttribute     string
	UpdatedAtAttribute string
	// OwnerPrefix is prepended to stable ids in the stored owner attribute.
	OwnerPrefix string
	// OrganizationPrefix excludes organization-owned records from listings.
	OrganizationPrefix string
}

// DefaultSchema matches the table layout the tool was built against.
func DefaultSchema() Schema {
	return Schema{
		IDAttribute:        "id",
		OwnerAttribute:     "owner",
		UpdatedAtAttribute: "updatedAt",
	}
}

// RecordKey identifies one record by artifact id and bare owner.
type RecordKey struct {
	ArtifactID string `json:"artifactId"`
	Owner      string `json:"owner"`
}

// Record is a full artifact item as currently stored.
type Record struct {
	ArtifactID string         `json:"artifactId"`
	Owner      string         `json:"owner"`
	Item       map[string]any `json:"item"`

	raw map[string]types.AttributeValue
}

// Directory is the DynamoDB-backed artifact directory.
type Directory struct {
	api     DynamoAPI
	schema  Schema
	now     func() time.Time
	backoff retry.BackoffDelayer
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a directory over the given client. Empty schema fields fall
// back to DefaultSchema.
func New(api DynamoAPI, schema Schema) *Directory {
	def := DefaultSchema()
	if schema.IDAttribute == "" {
		schema.IDAttribute = def.IDAttribute
	}
	if schema.OwnerAttribute == "" {
		schema.OwnerAttribute = def.OwnerAttribute
	}
	if schema.UpdatedAtAttribute == "" {
		schema.UpdatedAtAttribute = def.UpdatedAtAttribute
	}
	return &Directory{
		api:     api,
		schema:  schema,
		now:     time.Now,
		backoff: retry.NewExponentialJitterBackoff(maxUnprocessedBackoff),
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ListArtifacts scans the table for every user-owned artifact.
func (d *Directory) ListArtifacts(ctx context.Context, table string) ([]planner.Artifact, error) {
	input := &dynamodb.ScanInput{
		TableName:            aws.String(table),
		ProjectionExpression: aws.String("#id, #owner"),
		ExpressionAttributeNames: map[string]string{
			"#id":    d.schema.IDAttribute,
			"#owner": d.schema.OwnerAttribute,
		},
	}
	if d.schema.OrganizationPrefix != "" {
		input.FilterExpression = aws.String("NOT begins_with(#owner, :org)")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":org": &types.AttributeValueMemberS{Value: d.schema.OwnerPrefix + d.schema.OrganizationPrefix},
		}
	}

	var artifacts []planner.Artifact
	for {
		out, err := d.api.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		for _, item := range out.Items {
			id, owner := d.keyOf(item)
			if id == "" {
				continue
			}
			artifacts = append(artifacts, planner.Artifact{ArtifactID: id, CurrentOwner: owner})
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return artifacts, nil
}

// FetchRecords loads the full items for keys. Keys that do not exist are
// simply absent from the result. Unprocessed keys are retried with jittered
// exponential backoff.
func (d *Directory) FetchRecords(ctx context.Context, table string, keys []RecordKey) ([]Record, error) {
	var records []Record
	for start := 0; start < len(keys); start += batchGetLimit {
		end := min(start+batchGetLimit, len(keys))
		request := make([]map[string]types.AttributeValue, 0, end-start)
		for _, key := range keys[start:end] {
			request = append(request, d.key(key.ArtifactID, key.Owner))
		}

		pending := map[string]types.KeysAndAttributes{table: {Keys: request}}
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt > 0 {
				if attempt > maxUnprocessedRetries {
					return nil, fmt.Errorf("batch get %s: %d keys still unprocessed after %d retries", table, len(pending[table].Keys), maxUnprocessedRetries)
				}
				delay, err := d.backoff.BackoffDelay(attempt, nil)
				if err != nil {
					return nil, err
				}
				if err := d.sleep(ctx, delay); err != nil {
					return nil, err
				}
			}
			out, err := d.api.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: pending})
			if err != nil {
				return nil, fmt.Errorf("batch get %s: %w", table, err)
			}
			for _, item := range out.Responses[table] {
				record, err := d.decode(item)
				if err != nil {
					return nil, err
				}
				records = append(records, record)
			}
			pending = out.UnprocessedKeys
		}
	}
	return records, nil
}

// TransferOwnership moves a record to newOwner in one transaction: the old key
// is deleted and the item is written under the new key with a fresh
// updated-at timestamp. Both writes are conditional on the current state.
func (d *Directory) TransferOwnership(ctx context.Context, table string, record Record, newOwner string) error {
	if newOwner == "" {
		return errors.New("new owner is required")
	}
	item, err := d.itemOf(record)
	if err != nil {
		return err
	}
	item[d.schema.OwnerAttribute] = &types.AttributeValueMemberS{Value: d.schema.OwnerPrefix + newOwner}
	item[d.schema.UpdatedAtAttribute] = &types.AttributeValueMemberS{Value: d.now().UTC().Format(time.RFC3339Nano)}

	names := map[string]string{"#id": d.schema.IDAttribute}
	_, err = d.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:                aws.String(table),
				Key:                      d.key(record.ArtifactID, record.Owner),
				ConditionExpression:      aws.String("attribute_exists(#id)"),
				ExpressionAttributeNames: names,
			}},
			{Put: &types.Put{
				TableName:                aws.String(table),
				Item:                     item,
				ConditionExpression:      aws.String("attribute_not_exists(#id)"),
				ExpressionAttributeNames: names,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("transfer %s from %s to %s: %w", record.ArtifactID, record.Owner, newOwner, err)
	}
	return nil
}

func (d *Directory) key(id, owner string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		d.schema.IDAttribute:    &types.AttributeValueMemberS{Value: id},
		d.schema.OwnerAttribute: &types.AttributeValueMemberS{Value: d.schema.OwnerPrefix + owner},
	}
}

func (d *Directory) keyOf(item map[string]types.AttributeValue) (string, string) {
	var id, owner string
	if v, ok := item[d.schema.IDAttribute].(*types.AttributeValueMemberS); ok {
		id = v.Value
	}
	if v, ok := item[d.schema.OwnerAttribute].(*types.AttributeValueMemberS); ok {
		owner = strings.TrimPrefix(v.Value, d.schema.OwnerPrefix)
	}
	return id, owner
}

func (d *Directory) decode(item map[string]types.AttributeValue) (Record, error) {
	id, owner := d.keyOf(item)
	var doc map[string]any
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return Record{}, fmt.Errorf("decode artifact %s: %w", id, err)
	}
	return Record{ArtifactID: id, Owner: owner, Item: doc, raw: item}, nil
}

// itemOf returns a mutable copy of the stored attributes, preferring the raw
// attribute values read from the table over re-encoding the decoded document.
func (d *Directory) itemOf(record Record) (map[string]types.AttributeValue, error) {
	if record.raw != nil {
		item := make(map[string]types.AttributeValue, len(record.raw))
		for k, v := range record.raw {
			item[k] = v
		}
		return item, nil
	}
	if record.Item == nil {
		return map[string]types.AttributeValue{
			d.schema.IDAttribute: &types.AttributeValueMemberS{Value: record.ArtifactID},
		}, nil
	}
	item, err := attributevalue.MarshalMap(record.Item)
	if err != nil {
		return nil, fmt.Errorf("encode artifact %s: %w", record.ArtifactID, err)
	}
	return item, nil
}
