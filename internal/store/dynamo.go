package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"vidpair/internal/correlate"
	"vidpair/internal/model"
)

// RoleIndexName is the global secondary index used for role-scoped session
// queries: hash key "role", range key "canonicalTimestamp".
const RoleIndexName = "roleIndex"

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStore implements the correlation store on a DynamoDB table with
// native TTL enabled on expiryEpochSeconds. TTL deletion is lazy, so every
// query also filters expired items server-side.
type DynamoStore struct {
	client DynamoAPI
	table  string
	clock  correlate.Clock
}

// NewDynamoStore creates a store backed by the given table. The table's
// partition key is "session", its sort key "canonicalTimestamp", and it
// carries the roleIndex GSI.
func NewDynamoStore(client DynamoAPI, table string, clock correlate.Clock) *DynamoStore {
	return &DynamoStore{client: client, table: table, clock: clock}
}

// dynamoItem mirrors the persisted item shape. The attribute names are part
// of the table's compatibility contract and must not change.
type dynamoItem struct {
	Session            string `dynamodbav:"session"`
	CanonicalTimestamp string `dynamodbav:"canonicalTimestamp"`
	OriginalTimestamp  string `dynamodbav:"originalTimestamp"`
	Role               string `dynamodbav:"role"`
	ArtifactID         string `dynamodbav:"artifactId"`
	ArrivalTimeISO8601 string `dynamodbav:"arrivalTimeIso8601"`
	ExpiryEpochSeconds int64  `dynamodbav:"expiryEpochSeconds"`
	MatchedWith        string `dynamodbav:"matchedWith,omitempty"`
}

func newDynamoItem(rec model.ArrivalRecord) dynamoItem {
	return dynamoItem{
		Session:            rec.Session,
		CanonicalTimestamp: rec.CanonicalTimestamp,
		OriginalTimestamp:  rec.OriginalTimestamp,
		Role:               string(rec.Role),
		ArtifactID:         rec.ArtifactID,
		ArrivalTimeISO8601: rec.ArrivalTime.UTC().Format(time.RFC3339),
		ExpiryEpochSeconds: rec.Expiry.Unix(),
		MatchedWith:        rec.MatchedWith,
	}
}

func (it dynamoItem) toRecord() (model.ArrivalRecord, error) {
	arrival, err := time.Parse(time.RFC3339, it.ArrivalTimeISO8601)
	if err != nil {
		return model.ArrivalRecord{}, fmt.Errorf("parsing arrival time %q: %w", it.ArrivalTimeISO8601, err)
	}
	return model.ArrivalRecord{
		Session:            it.Session,
		CanonicalTimestamp: it.CanonicalTimestamp,
		OriginalTimestamp:  it.OriginalTimestamp,
		Role:               model.Role(it.Role),
		ArtifactID:         it.ArtifactID,
		ArrivalTime:        arrival,
		Expiry:             time.Unix(it.ExpiryEpochSeconds, 0).UTC(),
		MatchedWith:        it.MatchedWith,
	}, nil
}

func (s *DynamoStore) InsertIfAbsent(ctx context.Context, rec model.ArrivalRecord) (correlate.InsertOutcome, error) {
	item, err := attributevalue.MarshalMap(newDynamoItem(rec))
	if err != nil {
		return correlate.AlreadyExists, fmt.Errorf("marshalling arrival: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#s)"),
		ExpressionAttributeNames: map[string]string{"#s": "session"},
	})
	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return correlate.AlreadyExists, nil
	}
	if err != nil {
		return correlate.AlreadyExists, fmt.Errorf("putting arrival: %w", err)
	}
	return correlate.Inserted, nil
}

func (s *DynamoStore) QueryByRoleAndSession(ctx context.Context, role model.Role, session string) ([]model.ArrivalRecord, error) {
	now := s.clock.Now().Unix()

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(RoleIndexName),
		KeyConditionExpression: aws.String("#r = :role"),
		FilterExpression:       aws.String("#s = :session AND expiryEpochSeconds > :now"),
		ExpressionAttributeNames: map[string]string{
			"#r": "role",
			"#s": "session",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":role":    &types.AttributeValueMemberS{Value: string(role)},
			":session": &types.AttributeValueMemberS{Value: session},
			":now":     &types.AttributeValueMemberN{Value: strconv.FormatInt(now, 10)},
		},
	})

	var out []model.ArrivalRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("querying arrivals: %w", err)
		}
		var items []dynamoItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshalling arrivals: %w", err)
		}
		for _, it := range items {
			rec, err := it.toRecord()
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *DynamoStore) ClaimPair(ctx context.Context, session, tsA, tsB string) (bool, error) {
	claim := func(ts, partner string) types.TransactWriteItem {
		return types.TransactWriteItem{
			Update: &types.Update{
				TableName: aws.String(s.table),
				Key: map[string]types.AttributeValue{
					"session":            &types.AttributeValueMemberS{Value: session},
					"canonicalTimestamp": &types.AttributeValueMemberS{Value: ts},
				},
				UpdateExpression:    aws.String("SET matchedWith = :p"),
				ConditionExpression: aws.String("attribute_exists(canonicalTimestamp) AND attribute_not_exists(matchedWith)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":p": &types.AttributeValueMemberS{Value: partner},
				},
			},
		}
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{claim(tsA, tsB), claim(tsB, tsA)},
	})
	var cancelled *types.TransactionCanceledException
	if errors.As(err, &cancelled) {
		for _, reason := range cancelled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				// Lost the race or one side already claimed.
				return false, nil
			}
		}
		return false, fmt.Errorf("claiming pair: %w", err)
	}
	if err != nil {
		return false, fmt.Errorf("claiming pair: %w", err)
	}
	return true, nil
}

func (s *DynamoStore) ReleasePair(ctx context.Context, session, tsA, tsB string) error {
	for _, pair := range [][2]string{{tsA, tsB}, {tsB, tsA}} {
		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.table),
			Key: map[string]types.AttributeValue{
				"session":            &types.AttributeValueMemberS{Value: session},
				"canonicalTimestamp": &types.AttributeValueMemberS{Value: pair[0]},
			},
			UpdateExpression:    aws.String("REMOVE matchedWith"),
			ConditionExpression: aws.String("matchedWith = :p"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":p": &types.AttributeValueMemberS{Value: pair[1]},
			},
		})
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			// Claimed by someone else, or never claimed; leave it alone.
			continue
		}
		if err != nil {
			return fmt.Errorf("releasing claim on %s: %w", pair[0], err)
		}
	}
	return nil
}

func (s *DynamoStore) Close() error { return nil }

// Compile-time check that DynamoStore implements the store interface
var _ correlate.Store = (*DynamoStore)(nil)
