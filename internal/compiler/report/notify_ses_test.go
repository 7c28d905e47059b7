package report

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"artifact-compiler/internal/common/errors"
)

type MockSESSender struct {
	mock.Mock
}

func (m *MockSESSender) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ses.SendEmailOutput), args.Error(1)
}

func TestSESNotifier_Notify(t *testing.T) {
	sender := new(MockSESSender)
	notifier := NewSESNotifier(sender, "compiler@example.com", []string{"pm@example.com"})

	rep := Build(errors.NewMissingInformationError("Domain X undefined"), createTestInput(), fixedNow)

	sender.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *ses.SendEmailInput) bool {
		body := aws.ToString(in.Message.Body.Text.Data)
		return aws.ToString(in.Source) == "compiler@example.com" &&
			assert.ObjectsAreEqual([]string{"pm@example.com"}, in.Destination.ToAddresses) &&
			aws.ToString(in.Message.Subject.Data) == "[human_input_required] planning blocked: MISSING_INFORMATION" &&
			strings.HasPrefix(body, rep.Summary) &&
			strings.Contains(body, "artifactctl reports resolve "+rep.ID)
	})).Return(&ses.SendEmailOutput{MessageId: aws.String("mail-1")}, nil)

	require.NoError(t, notifier.Notify(context.Background(), rep))
	sender.AssertExpectations(t)
}

func TestSESNotifier_SendFailure(t *testing.T) {
	sender := new(MockSESSender)
	sender.On("SendEmail", mock.Anything, mock.Anything).Return(nil, stderrors.New("message rejected"))

	notifier := NewSESNotifier(sender, "compiler@example.com", []string{"pm@example.com"})
	rep := Build(errors.NewInvalidRequestError("contradictory goals"), createTestInput(), fixedNow)

	err := notifier.Notify(context.Background(), rep)
	assert.ErrorContains(t, err, "message rejected")
	assert.ErrorContains(t, err, rep.ID)
}

func TestMultiNotifier(t *testing.T) {
	rep := Build(errors.NewMissingInformationError("Budget undefined"), createTestInput(), fixedNow)

	failing := new(MockNotifier)
	failing.On("Notify", mock.Anything, rep).Return(stderrors.New("topic gone"))
	ok := new(MockNotifier)
	ok.On("Notify", mock.Anything, rep).Return(nil)

	err := MultiNotifier{failing, ok}.Notify(context.Background(), rep)

	assert.ErrorContains(t, err, "topic gone")
	failing.AssertExpectations(t)
	ok.AssertExpectations(t)

	assert.NoError(t, MultiNotifier{ok}.Notify(context.Background(), rep))
}
