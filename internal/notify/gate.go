// Package notify sends routine family notifications, gated by the blackout
// windows the routing engine opens after a crisis handoff.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"

	"crisis-routing/internal/common/config"
	"crisis-routing/internal/common/logger"
	"crisis-routing/internal/common/metrics"
	"crisis-routing/internal/routing/store"
)

// Notification statuses.
const (
	StatusSent       = "sent"
	StatusSuppressed = "suppressed"
	StatusDisabled   = "disabled"
	StatusFailed     = "failed"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notification is one outbound parent-facing message.
type Notification struct {
	ChildID  string `json:"childId"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Priority string `json:"priority,omitempty"`
}

// Result reports the outcome of one notification.
type Result struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"`
	SentAt         string `json:"sentAt"`
}

// Gate delivers notifications unless an active blackout covers the child.
// Suppression checks always run first; a suppressed notification is counted
// and dropped, never queued.
type Gate struct {
	config    config.NotificationConfig
	blackouts store.BlackoutStore
	logger    logger.Logger
	sesClient SESService
	snsClient SNSService
}

func NewGate(cfg config.NotificationConfig, blackouts store.BlackoutStore, log logger.Logger) (*Gate, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Gate{
		config:    cfg,
		blackouts: blackouts,
		logger:    log.WithFields(map[string]interface{}{"component": "notify"}),
		sesClient: ses.NewFromConfig(awsCfg),
		snsClient: sns.NewFromConfig(awsCfg),
	}, nil
}

// NewGateWithClients wires explicit clients; used by tests.
func NewGateWithClients(cfg config.NotificationConfig, blackouts store.BlackoutStore, log logger.Logger, sesClient SESService, snsClient SNSService) *Gate {
	return &Gate{
		config:    cfg,
		blackouts: blackouts,
		logger:    log.WithFields(map[string]interface{}{"component": "notify"}),
		sesClient: sesClient,
		snsClient: snsClient,
	}
}

// Send delivers the notification unless a blackout window is open for the
// child. When the blackout check itself fails, the notification is
// suppressed; withholding a routine message is the safe side of that error.
func (g *Gate) Send(ctx context.Context, n *Notification) (*Result, error) {
	notificationID := uuid.New().String()
	sentAt := time.Now().UTC().Format(time.RFC3339)

	active, err := g.blackouts.ActiveForChild(ctx, n.ChildID)
	if err != nil {
		g.logger.Error("blackout check failed, suppressing", map[string]interface{}{
			"notificationId": notificationID,
			"error":          err.Error(),
		})
		active = true
	}
	if active {
		metrics.NotificationsSuppressed.Inc()
		g.logger.Info("notification suppressed by blackout", map[string]interface{}{
			"notificationId": notificationID,
		})
		return &Result{NotificationID: notificationID, Status: StatusSuppressed, SentAt: sentAt}, nil
	}

	emailSent := false
	smsSent := false

	if g.config.Email.Enabled && n.Email != "" {
		if err := g.sendEmail(ctx, n.Email, n.Subject, n.Body); err != nil {
			g.logger.Error("email send failed", map[string]interface{}{
				"notificationId": notificationID,
				"error":          err.Error(),
			})
			return &Result{NotificationID: notificationID, Status: StatusFailed, SentAt: sentAt}, nil
		}
		emailSent = true
	}

	if g.config.SMS.Enabled && n.Phone != "" && n.Priority == "high" {
		if err := g.sendSMS(ctx, n.Phone, n.Body); err != nil {
			g.logger.Error("SMS send failed", map[string]interface{}{
				"notificationId": notificationID,
				"error":          err.Error(),
			})
			return &Result{NotificationID: notificationID, Status: StatusFailed, SentAt: sentAt}, nil
		}
		smsSent = true
	}

	status := StatusDisabled
	if emailSent || smsSent {
		status = StatusSent
	}
	return &Result{NotificationID: notificationID, Status: status, SentAt: sentAt}, nil
}

func (g *Gate) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := g.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
				Html: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(g.config.Email.FromEmail),
	})
	return err
}

func (g *Gate) sendSMS(ctx context.Context, to, message string) error {
	_, err := g.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	})
	return err
}
