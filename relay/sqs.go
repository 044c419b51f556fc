package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/jacentio/storefront/internal/shard"
)

// SQSAPI is the subset of the SQS client used by SQS.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSConfig maps topics onto queues.
type SQSConfig struct {
	// QueueURLs maps a topic to its queue URL.
	QueueURLs map[string]string

	// MessageGroups is the number of FIFO message groups keys are spread over.
	// Ignored for standard queues.
	// Default: 1
	// Max: 256
	MessageGroups int
}

func (c *SQSConfig) validate() {
	if c.MessageGroups < 1 {
		c.MessageGroups = 1
	}
	if c.MessageGroups > 256 {
		c.MessageGroups = 256
	}
}

// SQS publishes messages to Amazon SQS queues.
type SQS struct {
	client SQSAPI
	config SQSConfig
}

var _ Publisher = (*SQS)(nil)

// NewSQS creates an SQS publisher.
func NewSQS(client SQSAPI, config SQSConfig) *SQS {
	config.validate()
	return &SQS{client: client, config: config}
}

func (s *SQS) Publish(ctx context.Context, topic, key, message string) error {
	url, ok := s.config.QueueURLs[topic]
	if !ok || url == "" {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(message),
	}
	if isFIFO(url) {
		input.MessageGroupId = aws.String(shard.MessageGroup(key, s.config.MessageGroups))
		input.MessageDeduplicationId = aws.String(shard.DeduplicationID(topic, key, message))
	}

	if _, err := s.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send to %s: %w", topic, err)
	}
	return nil
}

func isFIFO(queueURL string) bool {
	return strings.HasSuffix(queueURL, ".fifo")
}
