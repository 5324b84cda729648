package mail

import (
	"encoding/base64"
	"errors"
	"io"
	"mime/quotedprintable"
	netmail "net/mail"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/voyagecover/claims-intake/internal/domain"
)

// ErrMalformed indicates a provider payload that cannot be normalized:
// missing id, or neither subject nor body present. Such messages are
// dead-lettered, not retried.
var ErrMalformed = errors.New("mail: malformed message")

// Normalize converts a Gmail message into the canonical inbound form.
// Attachment bytes are NOT fetched; only metadata and retrieval handles are
// recorded so large payloads stay remote until relevance is established.
func Normalize(msg *gmail.Message) (*domain.InboundMessage, error) {
	if msg == nil || msg.Id == "" || msg.Payload == nil {
		return nil, ErrMalformed
	}

	out := &domain.InboundMessage{
		ProviderID: msg.Id,
		ThreadID:   msg.ThreadId,
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
	}

	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			out.Subject = h.Value
		case "from":
			out.FromAddress = bareAddress(h.Value)
		case "to":
			out.ToAddress = bareAddress(h.Value)
		case "date":
			if out.ReceivedAt.IsZero() || msg.InternalDate == 0 {
				if t, err := netmail.ParseDate(h.Value); err == nil {
					out.ReceivedAt = t.UTC()
				}
			}
		}
	}

	walkParts(msg.Id, msg.Payload, out)

	if out.Subject == "" && out.BodyText == "" && out.BodyHTML == "" {
		return nil, ErrMalformed
	}
	if out.ReceivedAt.IsZero() {
		out.ReceivedAt = time.Now().UTC()
	}

	return out, nil
}

// walkParts recurses through the MIME tree collecting body text and
// attachment metadata. The first text/plain and text/html parts win.
func walkParts(messageID string, part *gmail.MessagePart, out *domain.InboundMessage) {
	if part == nil {
		return
	}

	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		out.Attachments = append(out.Attachments, domain.AttachmentRef{
			MessageID:    messageID,
			AttachmentID: part.Body.AttachmentId,
			Filename:     part.Filename,
			MimeType:     part.MimeType,
			SizeBytes:    part.Body.Size,
		})
		return
	}

	switch part.MimeType {
	case "text/plain":
		if out.BodyText == "" {
			out.BodyText = decodePartBody(part)
		}
	case "text/html":
		if out.BodyHTML == "" {
			out.BodyHTML = decodePartBody(part)
		}
	}

	for _, child := range part.Parts {
		walkParts(messageID, child, out)
	}
}

// decodePartBody decodes a part's base64url body data. Parts that declare a
// quoted-printable transfer encoding get a second decode pass; Gmail leaves
// that encoding in place for some relayed messages.
func decodePartBody(part *gmail.MessagePart) string {
	if part.Body == nil || part.Body.Data == "" {
		return ""
	}

	data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(part.Body.Data)
	if err != nil {
		// Some providers pad; retry with standard padding before giving up
		if padded, perr := base64.URLEncoding.DecodeString(part.Body.Data); perr == nil {
			data = padded
		} else {
			return ""
		}
	}

	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, "Content-Transfer-Encoding") &&
			strings.EqualFold(strings.TrimSpace(h.Value), "quoted-printable") {
			decoded, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(string(data))))
			if err == nil {
				return string(decoded)
			}
		}
	}

	return string(data)
}

// bareAddress reduces "Name <addr@host>" to "addr@host".
func bareAddress(s string) string {
	addr, err := netmail.ParseAddress(s)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return addr.Address
}
