package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	appconfig "github.com/msapprovals/watchdog/internal/config"
)

// Sink delivers one composed notification.
type Sink interface {
	Send(ctx context.Context, item *Item) error
}

// SESSink delivers notifications through AWS SES v2. Items without
// attachments go out as simple content; items with attachments are
// assembled into a raw MIME message.
type SESSink struct {
	client *sesv2.Client
	from   string
	log    *zap.Logger
}

func NewSESSink(ctx context.Context, cfg appconfig.SESConfig, log *zap.Logger) (*SESSink, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	from := cfg.FromEmail
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail)
	}
	return &SESSink{
		client: sesv2.NewFromConfig(awsCfg),
		from:   from,
		log:    log.Named("ses"),
	}, nil
}

func (s *SESSink) Send(ctx context.Context, item *Item) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      destination(item),
	}
	if len(item.Attachments) == 0 {
		input.Content = &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(item.Subject)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(item.Body)},
				},
			},
		}
	} else {
		raw, err := buildRawMessage(s.from, item)
		if err != nil {
			return fmt.Errorf("assembling mime message: %w", err)
		}
		input.Content = &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		}
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("sending %s email to %s: %w", item.EmailType, item.To, err)
	}
	s.log.Info("email dispatched",
		zap.String("to", item.To),
		zap.String("emailType", item.EmailType.String()),
		zap.String("messageId", aws.ToString(out.MessageId)),
		zap.String("xcv", item.Telemetry.Xcv),
		zap.String("tcv", item.Telemetry.Tcv))
	return nil
}

func destination(item *Item) *types.Destination {
	d := &types.Destination{ToAddresses: splitAddresses(item.To)}
	if item.Cc != "" {
		d.CcAddresses = splitAddresses(item.Cc)
	}
	if item.Bcc != "" {
		d.BccAddresses = splitAddresses(item.Bcc)
	}
	return d
}

func splitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

const mimeBoundary = "watchdog-mixed-boundary"

// buildRawMessage assembles a multipart/mixed MIME message with the HTML
// body followed by base64 attachment parts.
func buildRawMessage(from string, item *Item) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", item.To)
	if item.Cc != "" {
		fmt.Fprintf(&buf, "Cc: %s\r\n", item.Cc)
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", item.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mimeBoundary)

	fmt.Fprintf(&buf, "--%s\r\n", mimeBoundary)
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	buf.WriteString(item.Body)
	buf.WriteString("\r\n")

	for _, a := range item.Attachments {
		ctype := mime.TypeByExtension(filepath.Ext(a.Name))
		if ctype == "" {
			ctype = "application/octet-stream"
		}
		fmt.Fprintf(&buf, "--%s\r\n", mimeBoundary)
		fmt.Fprintf(&buf, "Content-Type: %s\r\n", ctype)
		buf.WriteString("Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n\r\n", a.Name)

		enc := base64.StdEncoding.EncodeToString(a.Content)
		for len(enc) > 76 {
			buf.WriteString(enc[:76])
			buf.WriteString("\r\n")
			enc = enc[76:]
		}
		buf.WriteString(enc)
		buf.WriteString("\r\n")
	}
	fmt.Fprintf(&buf, "--%s--\r\n", mimeBoundary)
	return buf.Bytes(), nil
}
