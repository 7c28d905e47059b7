package report

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"artifact-compiler/internal/models"
)

// SESSender is the subset of the SES client the notifier needs.
type SESSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier mails blocking reports to the reviewers who can answer them.
type SESNotifier struct {
	client     SESSender
	sender     string
	recipients []string
}

func NewSESNotifier(client SESSender, sender string, recipients []string) *SESNotifier {
	return &SESNotifier{client: client, sender: sender, recipients: recipients}
}

func (n *SESNotifier) Notify(ctx context.Context, r *models.FailureReport) error {
	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(n.sender),
		Destination: &types.Destination{ToAddresses: n.recipients},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject(r)), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(emailBody(r)), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("email report %s: %w", r.ID, err)
	}
	return nil
}

func emailBody(r *models.FailureReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", r.Summary)
	fmt.Fprintf(&b, "Report:   %s\n", r.ID)
	fmt.Fprintf(&b, "Phase:    %s\n", r.Phase)
	if r.ArtifactID != "" {
		fmt.Fprintf(&b, "Artifact: %s (%s)\n", r.ArtifactID, r.ArtifactKind)
	}
	fmt.Fprintf(&b, "Error:    %s\n", r.ErrorKind)
	fmt.Fprintf(&b, "Action:   %s\n", r.RecoveryAction)
	if r.RawExcerpt != "" {
		fmt.Fprintf(&b, "\nModel output:\n%s\n", r.RawExcerpt)
	}
	b.WriteString("\nResolve with: artifactctl reports resolve " + r.ID + " <answer>\n")
	return b.String()
}

// MultiNotifier fans a report out to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, r *models.FailureReport) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
