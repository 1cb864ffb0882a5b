package services

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// AlertPublisher delivers operational alerts. Satisfied by SNSAlertPublisher
// in production and by test fakes.
type AlertPublisher interface {
	Publish(ctx context.Context, topicArn string, message []byte) error
}

type SNSAlertPublisher struct {
	client *sns.Client
}

func NewSNSAlertPublisher(cfg sdkaws.Config) *SNSAlertPublisher {
	return &SNSAlertPublisher{client: sns.NewFromConfig(cfg)}
}

func (p *SNSAlertPublisher) Publish(ctx context.Context, topicArn string, message []byte) error {
	if topicArn == "" {
		return fmt.Errorf("empty topicArn")
	}
	msg := string(message)
	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: &topicArn,
		Message:  &msg,
	})
	if err != nil {
		return fmt.Errorf("sns publish failed for topic %s: %w", topicArn, err)
	}
	return nil
}
