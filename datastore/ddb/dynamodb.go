/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/entitywork/config"
	"github.com/suparena/entitywork/errors"
)

// API is the part of the DynamoDB client the provider calls. *dynamodb.Client implements it.
type API interface {
	DescribeTable(ctx context.Context, in *sdk.DescribeTableInput, optFns ...func(*sdk.Options)) (*sdk.DescribeTableOutput, error)
	GetItem(ctx context.Context, in *sdk.GetItemInput, optFns ...func(*sdk.Options)) (*sdk.GetItemOutput, error)
	Scan(ctx context.Context, in *sdk.ScanInput, optFns ...func(*sdk.Options)) (*sdk.ScanOutput, error)
	TransactWriteItems(ctx context.Context, in *sdk.TransactWriteItemsInput, optFns ...func(*sdk.Options)) (*sdk.TransactWriteItemsOutput, error)
}

// NewClient initializes a DynamoDB client. Static credentials are used when an access key is
// configured, otherwise the default AWS credential chain.
func NewClient(ctx context.Context, cfg config.DynamoDBConfig) (*sdk.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS configuration")
	}
	return sdk.NewFromConfig(awsCfg, func(o *sdk.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// EntityTypeAttribute names the attribute every item carries so a single table can hold many types.
const EntityTypeAttribute = "EntityType"

var macroPattern = regexp.MustCompile(`{([^}]+)}`)

// expandMacros fills the templates of indexMap, e.g. "EMPLOYEE#{ID}", from the attributes of entity.
func expandMacros(indexMap map[string]string, entity any) (map[string]string, error) {
	av, err := attributevalue.MarshalMap(entity)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling key attributes")
	}

	res := make(map[string]string, len(indexMap))
	for field, template := range indexMap {
		res[field] = macroPattern.ReplaceAllStringFunc(template, func(macro string) string {
			switch tv := av[strings.Trim(macro, "{}")].(type) {
			case *types.AttributeValueMemberS:
				return tv.Value
			case *types.AttributeValueMemberN:
				return tv.Value
			case *types.AttributeValueMemberBOOL:
				return fmt.Sprintf("%v", tv.Value)
			default:
				// missing, NULL, binary and sets do not render into keys
				return ""
			}
		})
	}
	return res, nil
}

// expandStringKey replaces every macro of indexMap with key.
func expandStringKey(indexMap map[string]string, key string) map[string]string {
	expanded := make(map[string]string, len(indexMap))
	for field, template := range indexMap {
		expanded[field] = macroPattern.ReplaceAllLiteralString(template, key)
	}
	return expanded
}

// buildKeyFromExpanded builds the primary key of an item. PK and SK must both be non-empty.
func buildKeyFromExpanded(expanded map[string]string) (map[string]types.AttributeValue, error) {
	pk, sk := expanded["PK"], expanded["SK"]
	if pk == "" || sk == "" {
		return nil, errors.NewValidationError("PK", "expanded index map is missing PK or SK")
	}
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}, nil
}

// itemKey is the string form of a primary key, used to index staged writes.
func itemKey(expanded map[string]string) string {
	return expanded["PK"] + "|" + expanded["SK"]
}
