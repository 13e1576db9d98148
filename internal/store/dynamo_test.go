package store

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/BTreeMap/MindMate/internal/models"
)

// fakeDynamo keeps items in memory and pages results two at a time so
// callers must follow LastEvaluatedKey.
type fakeDynamo struct {
	items   []map[string]dbtypes.AttributeValue
	putErr  error
	queries int
}

func attrS(item map[string]dbtypes.AttributeValue, name string) string {
	if v, ok := item[name].(*dbtypes.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func page(matched []map[string]dbtypes.AttributeValue, start map[string]dbtypes.AttributeValue) ([]map[string]dbtypes.AttributeValue, map[string]dbtypes.AttributeValue) {
	offset := 0
	if start != nil {
		offset, _ = strconv.Atoi(attrS(start, "offset"))
	}
	end := offset + 2
	if end >= len(matched) {
		return matched[offset:], nil
	}
	return matched[offset:end], map[string]dbtypes.AttributeValue{
		"offset": &dbtypes.AttributeValueMemberS{Value: strconv.Itoa(end)},
	}
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries++
	pk := attrS(in.ExpressionAttributeValues, ":pk")
	lo := attrS(in.ExpressionAttributeValues, ":lo")
	hi := attrS(in.ExpressionAttributeValues, ":hi")
	var matched []map[string]dbtypes.AttributeValue
	for _, it := range f.items {
		sk := attrS(it, "sk")
		if attrS(it, "pk") == pk && sk >= lo && sk <= hi {
			matched = append(matched, it)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return attrS(matched[i], "sk") < attrS(matched[j], "sk") })
	items, next := page(matched, in.ExclusiveStartKey)
	return &dynamodb.QueryOutput{Items: items, LastEvaluatedKey: next}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	since := attrS(in.ExpressionAttributeValues, ":since")
	var matched []map[string]dbtypes.AttributeValue
	for _, it := range f.items {
		if attrS(it, "ts") >= since {
			matched = append(matched, map[string]dbtypes.AttributeValue{"userId": it["userId"]})
		}
	}
	items, next := page(matched, in.ExclusiveStartKey)
	return &dynamodb.ScanOutput{Items: items, LastEvaluatedKey: next}, nil
}

func TestDynamoInteractionStore_RoundTrip(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoInteractionStore(fake, "interactions")
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, mood := range []int{7, 6, 5, 4, 3} {
		if _, err := s.AppendRecord(ctx, moodRecord("u1", base.Add(time.Duration(4-i)*time.Hour), mood, "")); err != nil {
			t.Fatalf("AppendRecord failed: %v", err)
		}
	}
	if _, err := s.AppendRecord(ctx, chatRecord("u1", base, "hi")); err != nil {
		t.Fatalf("AppendRecord chat failed: %v", err)
	}
	if _, err := s.AppendRecord(ctx, moodRecord("u2", base.Add(-48*time.Hour), 5, "")); err != nil {
		t.Fatalf("AppendRecord u2 failed: %v", err)
	}
	if pk := attrS(fake.items[0], "pk"); pk != "USER#u1" {
		t.Errorf("unexpected pk %q", pk)
	}

	recs, err := s.QueryRecords(ctx, "u1", models.RecordKindMood, models.TimeRange{})
	if err != nil {
		t.Fatalf("QueryRecords failed: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("expected 5 mood records across pages, got %d", len(recs))
	}
	if fake.queries != 3 {
		t.Errorf("expected 3 paged queries, got %d", fake.queries)
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].Timestamp.Before(recs[i-1].Timestamp) {
			t.Fatal("records not ordered by timestamp")
		}
	}
	if recs[0].Mood.Mood != 3 {
		t.Errorf("expected oldest mood 3, got %d", recs[0].Mood.Mood)
	}

	windowed, err := s.QueryRecords(ctx, "u1", models.RecordKindMood, models.TimeRange{From: base.Add(time.Hour), To: base.Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("QueryRecords windowed failed: %v", err)
	}
	if len(windowed) != 2 {
		t.Errorf("expected 2 records in inclusive window, got %d", len(windowed))
	}

	users, err := s.ActiveUsers(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ActiveUsers failed: %v", err)
	}
	if len(users) != 1 || users[0] != "u1" {
		t.Errorf("expected [u1], got %v", users)
	}
}

func TestDynamoInteractionStore_Errors(t *testing.T) {
	fake := &fakeDynamo{putErr: errors.New("throttled")}
	s := NewDynamoInteractionStore(fake, "")
	ts := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	if _, err := s.AppendRecord(context.Background(), moodRecord("u1", ts, 5, "")); err == nil {
		t.Fatal("expected put error to surface")
	}
	if _, err := s.AppendRecord(context.Background(), moodRecord("u1", ts, 0, "")); !errors.Is(err, models.ErrInvalidMood) {
		t.Errorf("expected validation before any write, got %v", err)
	}
}

func TestWithInteractionStore_RoutesRecords(t *testing.T) {
	fake := &fakeDynamo{}
	base := NewInMemoryStore()
	s := WithInteractionStore(base, NewDynamoInteractionStore(fake, "t"))
	ts := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	if _, err := s.AppendRecord(context.Background(), moodRecord("u1", ts, 5, "")); err != nil {
		t.Fatalf("AppendRecord failed: %v", err)
	}
	if len(fake.items) != 1 {
		t.Errorf("expected record routed to DynamoDB, got %d items", len(fake.items))
	}
	local, _ := base.QueryRecords(context.Background(), "u1", models.RecordKindMood, models.TimeRange{})
	if len(local) != 0 {
		t.Errorf("record should not be written to the base store")
	}
	if WithInteractionStore(base, nil) != Store(base) {
		t.Error("nil interaction store should return base unchanged")
	}
}
