package storage

import (
	"encoding/json"
	"fmt"
)

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Sid       string                         `json:"Sid"`
	Effect    string                         `json:"Effect"`
	Action    []string                       `json:"Action"`
	Resource  []string                       `json:"Resource"`
	Condition map[string]map[string][]string `json:"Condition,omitempty"`
}

// PrefixPolicy builds an inline IAM policy that allows list/get/put/delete
// only under prefix in bucket.
func PrefixPolicy(bucket, prefix string) (string, error) {
	if prefix == "" {
		return "", ErrEmptyPrefix
	}

	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{
			{
				Sid:      "ListRevisionPrefix",
				Effect:   "Allow",
				Action:   []string{"s3:ListBucket"},
				Resource: []string{fmt.Sprintf("arn:aws:s3:::%s", bucket)},
				Condition: map[string]map[string][]string{
					"StringLike": {"s3:prefix": {prefix + "*"}},
				},
			},
			{
				Sid:      "ReadWriteRevisionObjects",
				Effect:   "Allow",
				Action:   []string{"s3:GetObject", "s3:PutObject", "s3:DeleteObject"},
				Resource: []string{fmt.Sprintf("arn:aws:s3:::%s/%s*", bucket, prefix)},
			},
		},
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal policy: %w", err)
	}
	return string(b), nil
}
