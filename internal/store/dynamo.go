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
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"github.com/facadelab/restyle/internal/apperr"
)

// maxBatchWrite is the DynamoDB BatchWriteItem limit per call.
const maxBatchWrite = 25

// batchRetries bounds re-submission of unprocessed batch items.
const batchRetries = 3

// DynamoStore implements TableStore against one DynamoDB table.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

var _ TableStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table. The client
// should be initialized from the shared AWS config.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func (s *DynamoStore) Get(ctx context.Context, pk, sk string) (Item, bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       primaryKey(pk, sk),
	})
	if err != nil {
		return nil, false, mapDynamoError(fmt.Sprintf("GetItem %s/%s", pk, sk), err)
	}
	if result.Item == nil {
		return nil, false, nil
	}
	return result.Item, true, nil
}

func (s *DynamoStore) Put(ctx context.Context, in PutInput) error {
	item, err := marshalData(in)
	if err != nil {
		return err
	}

	input := &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}
	if in.Condition != nil {
		expr, names, values, err := compileCondition(in.Condition)
		if err != nil {
			return err
		}
		input.ConditionExpression = aws.String(expr)
		input.ExpressionAttributeNames = names
		if len(values) > 0 {
			input.ExpressionAttributeValues = values
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return apperr.Wrap(apperr.KindConflict, fmt.Sprintf("condition failed for %s/%s", in.PK, in.SK), err)
		}
		return mapDynamoError(fmt.Sprintf("PutItem %s/%s", in.PK, in.SK), err)
	}
	return nil
}

func (s *DynamoStore) Update(ctx context.Context, in UpdateInput) (Item, error) {
	if len(in.Set) == 0 && len(in.Add) == 0 {
		return nil, apperr.New(apperr.KindValidation, "update with no attribute changes")
	}

	names := map[string]string{"#pk": "PK"}
	values := map[string]types.AttributeValue{}

	var setParts, addParts []string
	i := 0
	for attr, val := range in.Set {
		av, err := attributevalue.Marshal(val)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, fmt.Sprintf("marshal attribute %q", attr), err)
		}
		nameKey := fmt.Sprintf("#s%d", i)
		valueKey := fmt.Sprintf(":s%d", i)
		names[nameKey] = attr
		values[valueKey] = av
		setParts = append(setParts, fmt.Sprintf("%s = %s", nameKey, valueKey))
		i++
	}
	i = 0
	for attr, delta := range in.Add {
		nameKey := fmt.Sprintf("#a%d", i)
		valueKey := fmt.Sprintf(":a%d", i)
		names[nameKey] = attr
		values[valueKey] = &types.AttributeValueMemberN{Value: strconv.Itoa(delta)}
		addParts = append(addParts, fmt.Sprintf("%s %s", nameKey, valueKey))
		i++
	}

	updateExpr := ""
	if len(setParts) > 0 {
		updateExpr = "SET " + joinParts(setParts)
	}
	if len(addParts) > 0 {
		if updateExpr != "" {
			updateExpr += " "
		}
		updateExpr += "ADD " + joinParts(addParts)
	}

	// The item must already exist; UpdateItem would otherwise upsert.
	condExpr := "attribute_exists(#pk)"
	if in.Condition != nil {
		userExpr, userNames, userValues, err := compileCondition(in.Condition)
		if err != nil {
			return nil, err
		}
		condExpr = condExpr + " AND " + userExpr
		for k, v := range userNames {
			names[k] = v
		}
		for k, v := range userValues {
			values[k] = v
		}
	}

	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           &s.tableName,
		Key:                                 primaryKey(in.PK, in.SK),
		UpdateExpression:                    aws.String(updateExpr),
		ConditionExpression:                 aws.String(condExpr),
		ExpressionAttributeNames:            names,
		ExpressionAttributeValues:           values,
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			// The old item comes back on condition failure, which tells
			// apart "absent" from "present but condition lost".
			if len(condErr.Item) == 0 {
				return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("item %s/%s not found", in.PK, in.SK))
			}
			return nil, apperr.Wrap(apperr.KindConflict, fmt.Sprintf("condition failed for %s/%s", in.PK, in.SK), err)
		}
		return nil, mapDynamoError(fmt.Sprintf("UpdateItem %s/%s", in.PK, in.SK), err)
	}
	return result.Attributes, nil
}

func (s *DynamoStore) Delete(ctx context.Context, pk, sk string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key:       primaryKey(pk, sk),
	})
	if err != nil {
		return mapDynamoError(fmt.Sprintf("DeleteItem %s/%s", pk, sk), err)
	}
	return nil
}

func (s *DynamoStore) Query(ctx context.Context, in QueryInput) ([]Item, string, error) {
	pkAttr, skAttr := indexKeyNames(in.Index)

	keyCond := "#pk = :pk"
	names := map[string]string{"#pk": pkAttr}
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: in.PK},
	}
	if in.SKPrefix != "" {
		keyCond += " AND begins_with(#sk, :skp)"
		names["#sk"] = skAttr
		values[":skp"] = &types.AttributeValueMemberS{Value: in.SKPrefix}
	}

	input := &dynamodb.QueryInput{
		TableName:                 &s.tableName,
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
	if in.Index != "" {
		input.IndexName = aws.String(in.Index)
	}
	if in.Limit > 0 {
		input.Limit = aws.Int32(in.Limit)
	}

	startKey, err := decodeCursor(in.Cursor)
	if err != nil {
		return nil, "", err
	}
	if startKey != nil {
		exclusive := make(map[string]types.AttributeValue, len(startKey))
		for k, v := range startKey {
			exclusive[k] = &types.AttributeValueMemberS{Value: v}
		}
		input.ExclusiveStartKey = exclusive
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, "", mapDynamoError(fmt.Sprintf("Query %s pk=%s", in.Index, in.PK), err)
	}

	nextCursor := ""
	if result.LastEvaluatedKey != nil {
		lastKey := make(map[string]string, len(result.LastEvaluatedKey))
		for k, v := range result.LastEvaluatedKey {
			sv, ok := v.(*types.AttributeValueMemberS)
			if !ok {
				return nil, "", apperr.New(apperr.KindInternal, fmt.Sprintf("non-string key attribute %q in query resume key", k))
			}
			lastKey[k] = sv.Value
		}
		nextCursor, err = encodeCursor(lastKey)
		if err != nil {
			return nil, "", err
		}
	}
	return result.Items, nextCursor, nil
}

func (s *DynamoStore) BatchPut(ctx context.Context, items []PutInput) error {
	var requests []types.WriteRequest
	for _, in := range items {
		item, err := marshalData(in)
		if err != nil {
			return err
		}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: item},
		})
	}

	var unprocessed []types.WriteRequest
	for start := 0; start < len(requests); start += maxBatchWrite {
		end := start + maxBatchWrite
		if end > len(requests) {
			end = len(requests)
		}
		leftover, err := s.writeBatchChunk(ctx, requests[start:end])
		if err != nil {
			return err
		}
		unprocessed = append(unprocessed, leftover...)
	}

	if len(unprocessed) == 0 {
		return nil
	}
	pf := &PartialFailure{}
	for _, req := range unprocessed {
		pk, _ := StringAttr(req.PutRequest.Item, "PK")
		sk, _ := StringAttr(req.PutRequest.Item, "SK")
		pf.Keys = append(pf.Keys, pk+"/"+sk)
	}
	return apperr.Wrap(apperr.KindThrottled, "batch write incomplete", pf)
}

// writeBatchChunk submits one chunk, retrying unprocessed items with
// backoff, and returns whatever is still unprocessed after the retries.
func (s *DynamoStore) writeBatchChunk(ctx context.Context, requests []types.WriteRequest) ([]types.WriteRequest, error) {
	pending := requests
	for attempt := 0; len(pending) > 0 && attempt <= batchRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			log.Debug().Int("attempt", attempt).Int("pending", len(pending)).Dur("backoff", backoff).Msg("Retrying unprocessed batch items")
			select {
			case <-ctx.Done():
				return pending, apperr.Wrap(apperr.KindInternal, "batch write canceled", ctx.Err())
			case <-time.After(backoff):
			}
		}

		result, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.tableName: pending},
		})
		if err != nil {
			return pending, mapDynamoError(fmt.Sprintf("BatchWriteItem (%d items)", len(pending)), err)
		}
		pending = result.UnprocessedItems[s.tableName]
	}
	return pending, nil
}

// --- Helpers ---

func primaryKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// compileCondition turns a structured condition into a DynamoDB condition
// expression with its name/value maps.
func compileCondition(c *Condition) (string, map[string]string, map[string]types.AttributeValue, error) {
	names := map[string]string{"#c": c.Attr}
	values := map[string]types.AttributeValue{}

	switch c.Op {
	case CondNotExists:
		return "attribute_not_exists(#c)", names, values, nil
	case CondEquals, CondNotEquals:
		av, err := attributevalue.Marshal(c.Value)
		if err != nil {
			return "", nil, nil, apperr.Wrap(apperr.KindValidation, fmt.Sprintf("marshal condition value for %q", c.Attr), err)
		}
		values[":c"] = av
		if c.Op == CondEquals {
			return "#c = :c", names, values, nil
		}
		// A missing attribute satisfies NotEquals.
		return "(attribute_not_exists(#c) OR #c <> :c)", names, values, nil
	default:
		return "", nil, nil, apperr.New(apperr.KindValidation, fmt.Sprintf("unknown condition op %q", c.Op))
	}
}

// mapDynamoError translates SDK failures into apperr kinds. Conditional
// failures are handled at the call sites, which know whether the item was
// expected to exist.
func mapDynamoError(op string, err error) error {
	var throughput *types.ProvisionedThroughputExceededException
	var requestLimit *types.RequestLimitExceeded
	if errors.As(err, &throughput) || errors.As(err, &requestLimit) {
		return apperr.Wrap(apperr.KindThrottled, op, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ThrottlingError":
			return apperr.Wrap(apperr.KindThrottled, op, err)
		case "ValidationException":
			return apperr.Wrap(apperr.KindValidation, op, err)
		}
	}
	return apperr.Wrap(apperr.KindInternal, op, err)
}

func joinParts(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
