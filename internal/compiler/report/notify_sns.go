package report

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"artifact-compiler/internal/models"
)

// SNSPublisher is the subset of the SNS client the notifier needs.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes blocking reports to a topic.
type SNSNotifier struct {
	client   SNSPublisher
	topicARN string
}

func NewSNSNotifier(client SNSPublisher, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN}
}

func (n *SNSNotifier) Notify(ctx context.Context, r *models.FailureReport) error {
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject(r)),
		Message:  aws.String(r.Summary),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"reportId":       stringAttr(r.ID),
			"phase":          stringAttr(r.Phase),
			"errorKind":      stringAttr(r.ErrorKind),
			"recoveryAction": stringAttr(r.RecoveryAction),
		},
	})
	if err != nil {
		return fmt.Errorf("publish report %s: %w", r.ID, err)
	}
	return nil
}

// subject stays under the 100 character SNS limit.
func subject(r *models.FailureReport) string {
	s := fmt.Sprintf("[%s] %s blocked: %s", r.RecoveryAction, r.Phase, r.ErrorKind)
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

func stringAttr(v string) types.MessageAttributeValue {
	if v == "" {
		v = "-"
	}
	return types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}
