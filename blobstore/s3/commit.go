package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/lexgo/blobstore"
)

// CurrentName is the pointer blob DDBCommitStore routes through DynamoDB.
const CurrentName = "CURRENT"

// ErrConcurrentModification is returned when another writer committed the
// same version first.
var ErrConcurrentModification = errors.New("s3: concurrent modification")

// DDBClient is the subset of *dynamodb.Client used for commits.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ blobstore.BlobStore = (*DDBCommitStore)(nil)

// DDBCommitStore stores blobs in S3 and keeps the CURRENT pointer in a
// DynamoDB table, one item per committed generation:
//
//	partition key: index_uri (S)
//	sort key:      generation (N)
//	attribute:     manifest (S)
//
// Every commit is a conditional put on the next generation, so of two
// writers racing from the same generation exactly one wins.
type DDBCommitStore struct {
	*Store
	ddb   DDBClient
	table string
	uri   string
}

// NewDDBCommitStore wraps store. uri identifies the index inside table,
// usually "s3://bucket/prefix".
func NewDDBCommitStore(store *Store, ddb DDBClient, table, uri string) *DDBCommitStore {
	return &DDBCommitStore{Store: store, ddb: ddb, table: table, uri: uri}
}

// Open serves CURRENT from DynamoDB and everything else from S3.
func (s *DDBCommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if name != CurrentName {
		return s.Store.Open(ctx, name)
	}
	gen, manifest, err := s.latest(ctx)
	if err != nil {
		return nil, err
	}
	if gen == 0 {
		return nil, blobstore.ErrNotFound
	}
	return blobstore.NewBytesBlob([]byte(manifest)), nil
}

// Put commits CURRENT with a conditional write and stores everything else
// in S3.
func (s *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	if name != CurrentName {
		return s.Store.Put(ctx, name, data)
	}
	gen, _, err := s.latest(ctx)
	if err != nil {
		return err
	}
	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"index_uri":  &types.AttributeValueMemberS{Value: s.uri},
			"generation": &types.AttributeValueMemberN{Value: strconv.FormatUint(gen+1, 10)},
			"manifest":   &types.AttributeValueMemberS{Value: string(data)},
		},
		ConditionExpression: aws.String("attribute_not_exists(generation)"),
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("s3: commit generation %d: %w", gen+1, err)
	}
	return nil
}

func (s *DDBCommitStore) latest(ctx context.Context) (uint64, string, error) {
	resp, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("index_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.uri},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("s3: query commits: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	genAttr, ok := item["generation"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("s3: commit item without generation")
	}
	manifest, ok := item["manifest"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("s3: commit item without manifest")
	}
	gen, err := strconv.ParseUint(genAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("s3: parse generation: %w", err)
	}
	return gen, manifest.Value, nil
}
