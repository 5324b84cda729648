// Package mail provides the inbound mailbox collaborator: a Gmail API
// client for listing recent messages and fetching attachment bytes, plus
// the normalizer that turns provider payloads into canonical messages.
package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/voyagecover/claims-intake/internal/pkg/httpretry"
)

// Mailbox is the consumed contract of the inbound mail provider.
type Mailbox interface {
	// ListRecent returns up to max recent inbox messages, newest last.
	ListRecent(ctx context.Context, max int64) ([]*gmail.Message, error)
	// GetAttachment fetches attachment bytes for a message. Called lazily
	// by document intake, never during normalization.
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// GmailClient implements Mailbox against the Gmail API.
type GmailClient struct {
	service *gmail.Service
	user    string
}

// NewGmailClient builds a Gmail client from an OAuth credentials file and a
// previously stored token. All API calls go through the retrying transport.
func NewGmailClient(ctx context.Context, credentialsFile, tokenFile string) (*GmailClient, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading gmail credentials: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing gmail credentials: %w", err)
	}

	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("reading gmail token (run the auth bootstrap first): %w", err)
	}

	// Give the oauth2 transport a retrying base client
	retryClient := httpretry.NewTransport(nil, 3).Client(0)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, retryClient)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	return &GmailClient{service: srv, user: "me"}, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// ListRecent returns recent inbox messages with full payloads.
func (g *GmailClient) ListRecent(ctx context.Context, max int64) ([]*gmail.Message, error) {
	if max <= 0 {
		max = 25
	}

	list, err := g.service.Users.Messages.List(g.user).
		Q("in:inbox").MaxResults(max).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	messages := make([]*gmail.Message, 0, len(list.Messages))
	for _, m := range list.Messages {
		full, err := g.service.Users.Messages.Get(g.user, m.Id).
			Format("full").Context(ctx).Do()
		if err != nil {
			// One unfetchable message must not sink the scan
			continue
		}
		messages = append(messages, full)
	}

	return messages, nil
}

// GetAttachment fetches and decodes the bytes of a single attachment.
func (g *GmailClient) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	att, err := g.service.Users.Messages.Attachments.Get(g.user, messageID, attachmentID).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetching attachment %s: %w", attachmentID, err)
	}

	data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(att.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding attachment %s: %w", attachmentID, err)
	}
	return data, nil
}

var _ Mailbox = (*GmailClient)(nil)
