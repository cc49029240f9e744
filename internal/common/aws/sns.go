// internal/common/aws/sns.go
package aws

import (
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// NewSNSClient returns the client used to publish escalation notices to the review topic.
func NewSNSClient(cfg sdkaws.Config) *sns.Client {
	return sns.NewFromConfig(cfg)
}
