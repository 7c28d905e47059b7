package report

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"artifact-compiler/internal/common/errors"
)

type MockSNSPublisher struct {
	mock.Mock
}

func (m *MockSNSPublisher) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sns.PublishOutput), args.Error(1)
}

func TestSNSNotifier_Notify(t *testing.T) {
	publisher := new(MockSNSPublisher)
	notifier := NewSNSNotifier(publisher, "arn:aws:sns:us-east-1:123456789012:artifact-failures")

	rep := Build(errors.NewMissingInformationError("Domain X undefined"), createTestInput(), fixedNow)

	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.ToString(in.TopicArn) == "arn:aws:sns:us-east-1:123456789012:artifact-failures" &&
			aws.ToString(in.Subject) == "[human_input_required] planning blocked: MISSING_INFORMATION" &&
			aws.ToString(in.Message) == rep.Summary &&
			aws.ToString(in.MessageAttributes["reportId"].StringValue) == rep.ID &&
			aws.ToString(in.MessageAttributes["errorKind"].StringValue) == "MISSING_INFORMATION"
	})).Return(&sns.PublishOutput{MessageId: aws.String("msg-1")}, nil)

	require.NoError(t, notifier.Notify(context.Background(), rep))
	publisher.AssertExpectations(t)
}

func TestSNSNotifier_PublishFailure(t *testing.T) {
	publisher := new(MockSNSPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil, stderrors.New("throttled"))

	notifier := NewSNSNotifier(publisher, "arn")
	rep := Build(errors.NewInvalidRequestError("contradictory goals"), createTestInput(), fixedNow)

	err := notifier.Notify(context.Background(), rep)
	assert.ErrorContains(t, err, "throttled")
	assert.ErrorContains(t, err, rep.ID)
}

func TestSubjectIsBounded(t *testing.T) {
	rep := Build(errors.NewNoJSONFoundError(), Input{Phase: strings.Repeat("p", 200)}, fixedNow)
	assert.Len(t, subject(rep), 100)
}
