// Package notify sends customer-facing claim emails over SES. Every send is
// best-effort: a failed notification is logged and reported as a boolean,
// never as an error that could block claim processing.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/osteele/liquid"

	"github.com/voyagecover/claims-intake/internal/domain"
	"github.com/voyagecover/claims-intake/internal/pkg/logger"
)

// sesAPI is the slice of the SES client the notifier uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Notifier renders liquid templates and sends them via SES.
type Notifier struct {
	ses       sesAPI
	engine    *liquid.Engine
	fromEmail string
	fromName  string
}

// New creates a notifier backed by SESv2. Static credentials are optional.
func New(ctx context.Context, region, accessKey, secretKey, fromEmail, fromName string) (*Notifier, error) {
	if fromEmail == "" {
		return nil, fmt.Errorf("notify: from email is required")
	}
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return newWith(sesv2.NewFromConfig(cfg), fromEmail, fromName), nil
}

func newWith(api sesAPI, fromEmail, fromName string) *Notifier {
	return &Notifier{
		ses:       api,
		engine:    liquid.NewEngine(),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

const receivedTemplate = `<html><body>
<p>Dear {{ customer_name }},</p>
<p>We have received your claim and opened file <strong>{{ claim_number }}</strong>.</p>
{% if policy_number != "" %}<p>Policy number on file: {{ policy_number }}.</p>{% endif %}
<p>Our team will review your submission and follow up with the next steps.
Please reference <strong>{{ claim_number }}</strong> in any further correspondence.</p>
<p>Kind regards,<br>{{ from_name }}</p>
</body></html>`

const statusTemplate = `<html><body>
<p>Dear {{ customer_name }},</p>
<p>Your claim <strong>{{ claim_number }}</strong> has moved to status
<strong>{{ status }}</strong>.</p>
{% if reason != "" %}<p>{{ reason }}</p>{% endif %}
<p>Kind regards,<br>{{ from_name }}</p>
</body></html>`

// ClaimReceived sends the acknowledgement for a newly opened claim.
func (n *Notifier) ClaimReceived(ctx context.Context, claim *domain.Claim) bool {
	subject := fmt.Sprintf("We received your claim %s", claim.ClaimNumber)
	return n.send(ctx, claim, receivedTemplate, subject, n.bindings(claim, "", ""))
}

// StatusChanged notifies the customer that their claim changed status.
func (n *Notifier) StatusChanged(ctx context.Context, claim *domain.Claim, reason string) bool {
	subject := fmt.Sprintf("Update on your claim %s", claim.ClaimNumber)
	return n.send(ctx, claim, statusTemplate, subject, n.bindings(claim, string(claim.Status), reason))
}

func (n *Notifier) bindings(claim *domain.Claim, status, reason string) map[string]interface{} {
	name := claim.CustomerName
	if name == "" {
		name = "Customer"
	}
	policy := ""
	if claim.PolicyNumber != nil {
		policy = *claim.PolicyNumber
	}
	return map[string]interface{}{
		"customer_name": name,
		"claim_number":  claim.ClaimNumber,
		"policy_number": policy,
		"status":        status,
		"reason":        reason,
		"from_name":     n.fromName,
	}
}

func (n *Notifier) send(ctx context.Context, claim *domain.Claim, tmpl, subject string, bindings map[string]interface{}) bool {
	if claim.CustomerEmail == "" {
		logger.Warn("notification skipped, claim has no customer email", "claim_id", claim.ID)
		return false
	}

	html, renderErr := n.engine.ParseAndRenderString(tmpl, bindings)
	if renderErr != nil {
		logger.Error("notification template render failed", "claim_id", claim.ID, "error", renderErr.Error())
		return false
	}

	from := n.fromEmail
	if n.fromName != "" {
		from = fmt.Sprintf("%s <%s>", n.fromName, n.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{claim.CustomerEmail}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(html), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	out, err := n.ses.SendEmail(sendCtx, input)
	if err != nil {
		logger.Warn("notification send failed",
			"claim_id", claim.ID,
			"email", logger.RedactEmail(claim.CustomerEmail),
			"error", err.Error())
		return false
	}

	msgID := ""
	if out.MessageId != nil {
		msgID = *out.MessageId
	}
	logger.Info("notification sent",
		"claim_id", claim.ID,
		"email", logger.RedactEmail(claim.CustomerEmail),
		"ses_message_id", msgID)
	return true
}
