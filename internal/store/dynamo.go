package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/util"
)

// DynamoDBAPI is the subset of the DynamoDB client used by
// DynamoInteractionStore.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// sortKeyLayout is fixed-width so sort keys order lexicographically by time.
const sortKeyLayout = "2006-01-02T15:04:05.000000000Z"

// DynamoInteractionStore keeps interaction records in a single DynamoDB table
// keyed by pk = USER#<id> and sk = <KIND>#<timestamp>#<recordID>.
type DynamoInteractionStore struct {
	client DynamoDBAPI
	table  string
}

var _ InteractionStore = (*DynamoInteractionStore)(nil)

// NewDynamoInteractionStore creates a store over table.
func NewDynamoInteractionStore(client DynamoDBAPI, table string) *DynamoInteractionStore {
	if table == "" {
		table = "mindmate-interactions"
	}
	return &DynamoInteractionStore{client: client, table: table}
}

func userPK(userID string) string { return "USER#" + userID }

func kindPrefix(kind models.RecordKind) string { return strings.ToUpper(string(kind)) + "#" }

func recordSK(kind models.RecordKind, ts time.Time, id string) string {
	return kindPrefix(kind) + ts.UTC().Format(sortKeyLayout) + "#" + id
}

func (s *DynamoInteractionStore) AppendRecord(ctx context.Context, rec models.InteractionRecord) (models.InteractionRecord, error) {
	if err := rec.Validate(); err != nil {
		return rec, err
	}
	rec.Timestamp = rec.Timestamp.UTC()
	if rec.ID == "" {
		rec.ID = util.NewRecordID(util.PrefixInteraction, rec.Timestamp)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("failed to marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]dbtypes.AttributeValue{
			"pk":     &dbtypes.AttributeValueMemberS{Value: userPK(rec.UserID)},
			"sk":     &dbtypes.AttributeValueMemberS{Value: recordSK(rec.Kind, rec.Timestamp, rec.ID)},
			"userId": &dbtypes.AttributeValueMemberS{Value: rec.UserID},
			"kind":   &dbtypes.AttributeValueMemberS{Value: string(rec.Kind)},
			"ts":     &dbtypes.AttributeValueMemberS{Value: rec.Timestamp.Format(sortKeyLayout)},
			"data":   &dbtypes.AttributeValueMemberS{Value: string(data)},
		},
	})
	if err != nil {
		slog.Error("DynamoInteractionStore.AppendRecord failed", "error", err, "userID", rec.UserID)
		return rec, fmt.Errorf("failed to put %s record for %s: %w", rec.Kind, rec.UserID, err)
	}
	return rec, nil
}

func (s *DynamoInteractionStore) QueryRecords(ctx context.Context, userID string, kind models.RecordKind, tr models.TimeRange) ([]models.InteractionRecord, error) {
	lower := kindPrefix(kind)
	upper := kindPrefix(kind) + "~"
	if !tr.From.IsZero() {
		lower = kindPrefix(kind) + tr.From.UTC().Format(sortKeyLayout)
	}
	if !tr.To.IsZero() {
		// '~' sorts after the '#<id>' suffix, so records at exactly To match.
		upper = kindPrefix(kind) + tr.To.UTC().Format(sortKeyLayout) + "~"
	}

	var (
		out      []models.InteractionRecord
		startKey map[string]dbtypes.AttributeValue
	)
	for {
		res, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("pk = :pk AND sk BETWEEN :lo AND :hi"),
			ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
				":pk": &dbtypes.AttributeValueMemberS{Value: userPK(userID)},
				":lo": &dbtypes.AttributeValueMemberS{Value: lower},
				":hi": &dbtypes.AttributeValueMemberS{Value: upper},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			slog.Error("DynamoInteractionStore.QueryRecords failed", "error", err, "userID", userID, "kind", kind)
			return nil, fmt.Errorf("failed to query %s records: %w", kind, err)
		}
		for _, item := range res.Items {
			dataAttr, ok := item["data"].(*dbtypes.AttributeValueMemberS)
			if !ok {
				continue
			}
			var rec models.InteractionRecord
			if err := json.Unmarshal([]byte(dataAttr.Value), &rec); err != nil {
				slog.Warn("DynamoInteractionStore.QueryRecords skipping undecodable item", "error", err)
				continue
			}
			out = append(out, rec)
		}
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		startKey = res.LastEvaluatedKey
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ActiveUsers scans the table. It is only called by the periodic sweep.
func (s *DynamoInteractionStore) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	seen := make(map[string]struct{})
	var startKey map[string]dbtypes.AttributeValue
	for {
		res, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                aws.String(s.table),
			FilterExpression:         aws.String("#ts >= :since"),
			ProjectionExpression:     aws.String("userId"),
			ExpressionAttributeNames: map[string]string{"#ts": "ts"},
			ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
				":since": &dbtypes.AttributeValueMemberS{Value: since.UTC().Format(sortKeyLayout)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan active users: %w", err)
		}
		for _, item := range res.Items {
			if u, ok := item["userId"].(*dbtypes.AttributeValueMemberS); ok {
				seen[u.Value] = struct{}{}
			}
		}
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		startKey = res.LastEvaluatedKey
	}
	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

// splitStore serves interactions from one backend and everything else from
// another.
type splitStore struct {
	Store
	interactions InteractionStore
}

// WithInteractionStore returns base with its interaction methods served by is.
func WithInteractionStore(base Store, is InteractionStore) Store {
	if is == nil {
		return base
	}
	return &splitStore{Store: base, interactions: is}
}

func (s *splitStore) AppendRecord(ctx context.Context, rec models.InteractionRecord) (models.InteractionRecord, error) {
	return s.interactions.AppendRecord(ctx, rec)
}

func (s *splitStore) QueryRecords(ctx context.Context, userID string, kind models.RecordKind, tr models.TimeRange) ([]models.InteractionRecord, error) {
	return s.interactions.QueryRecords(ctx, userID, kind, tr)
}

func (s *splitStore) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	return s.interactions.ActiveUsers(ctx, since)
}
