package aws

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func isolateEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDTEST")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
}

// queryServer answers one query-protocol action and records the form it got.
func queryServer(t *testing.T, body string) (*httptest.Server, *url.Values) {
	form := &url.Values{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		parsed, err := url.ParseQuery(string(raw))
		require.NoError(t, err)
		*form = parsed
		w.Header().Set("Content-Type", "text/xml")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, form
}

// ==========================
// Client construction
// ==========================

func TestNewClients_UseRegion(t *testing.T) {
	isolateEnv(t)
	ctx := context.Background()

	sesClient, err := NewSESClient(ctx, "eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", sesClient.client.Options().Region)

	snsClient, err := NewSNSClient(ctx, "ap-south-1")
	require.NoError(t, err)
	assert.Equal(t, "ap-south-1", snsClient.client.Options().Region)
}

func TestNewClients_BadEnvironment(t *testing.T) {
	isolateEnv(t)
	t.Setenv("AWS_S3_USE_ARN_REGION", "maybe")
	ctx := context.Background()

	_, err := NewSESClient(ctx, "eu-west-1")
	assert.ErrorContains(t, err, "load aws config for eu-west-1")

	_, err = NewSNSClient(ctx, "eu-west-1")
	assert.ErrorContains(t, err, "load aws config for eu-west-1")
}

// ==========================
// Requests
// ==========================

func TestSESClient_SendEmail(t *testing.T) {
	isolateEnv(t)
	srv, form := queryServer(t, `<SendEmailResponse xmlns="http://ses.amazonaws.com/doc/2010-12-01/">
  <SendEmailResult><MessageId>mail-1</MessageId></SendEmailResult>
  <ResponseMetadata><RequestId>req-1</RequestId></ResponseMetadata>
</SendEmailResponse>`)

	client, err := NewSESClient(context.Background(), "us-east-1")
	require.NoError(t, err)

	out, err := client.SendEmail(context.Background(), &ses.SendEmailInput{
		Source:      awssdk.String("compiler@example.com"),
		Destination: &sestypes.Destination{ToAddresses: []string{"oncall@example.com"}},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: awssdk.String("planning blocked")},
			Body:    &sestypes.Body{Text: &sestypes.Content{Data: awssdk.String("Budget undefined")}},
		},
	}, func(o *ses.Options) { o.BaseEndpoint = awssdk.String(srv.URL) })
	require.NoError(t, err)

	assert.Equal(t, "mail-1", awssdk.ToString(out.MessageId))
	assert.Equal(t, "SendEmail", form.Get("Action"))
	assert.Equal(t, "compiler@example.com", form.Get("Source"))
	assert.Equal(t, "oncall@example.com", form.Get("Destination.ToAddresses.member.1"))
}

func TestSNSClient_Publish(t *testing.T) {
	isolateEnv(t)
	srv, form := queryServer(t, `<PublishResponse xmlns="http://sns.amazonaws.com/doc/2010-03-31/">
  <PublishResult><MessageId>msg-1</MessageId></PublishResult>
  <ResponseMetadata><RequestId>req-1</RequestId></ResponseMetadata>
</PublishResponse>`)

	client, err := NewSNSClient(context.Background(), "us-east-1")
	require.NoError(t, err)

	out, err := client.Publish(context.Background(), &sns.PublishInput{
		TopicArn: awssdk.String("arn:aws:sns:us-east-1:123456789012:artifact-failures"),
		Message:  awssdk.String("Budget undefined"),
	}, func(o *sns.Options) { o.BaseEndpoint = awssdk.String(srv.URL) })
	require.NoError(t, err)

	assert.Equal(t, "msg-1", awssdk.ToString(out.MessageId))
	assert.Equal(t, "Publish", form.Get("Action"))
	assert.Equal(t, "Budget undefined", form.Get("Message"))
}
