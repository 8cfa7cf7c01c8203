package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/ternarybob/arbor"

	"github.com/Electrostatics/apbs-aws/internal/interfaces"
	"github.com/Electrostatics/apbs-aws/internal/models"
)

// SQSQueue is the SQS-backed work queue gateway. The queue URL is resolved
// from its name once, at construction.
type SQSQueue struct {
	client   sqsiface.SQSAPI
	queueURL string
	logger   arbor.ILogger
}

// NewSQSQueue resolves the queue by name on a fresh session.
func NewSQSQueue(region, queueName string, logger arbor.ILogger) (*SQSQueue, error) {
	sess, err := session.NewSession(aws.NewConfig().WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	client := sqs.New(sess)
	out, err := client.GetQueueUrl(&sqs.GetQueueUrlInput{QueueName: aws.String(queueName)})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve queue %q: %w", queueName, err)
	}
	return &SQSQueue{client: client, queueURL: aws.StringValue(out.QueueUrl), logger: logger}, nil
}

// NewSQSQueueWithClient wires an existing client and URL, used by tests.
func NewSQSQueueWithClient(client sqsiface.SQSAPI, queueURL string, logger arbor.ILogger) *SQSQueue {
	return &SQSQueue{client: client, queueURL: queueURL, logger: logger}
}

func (q *SQSQueue) Send(ctx context.Context, body string) error {
	_, err := q.client.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context, visibilityTimeout int64) (*interfaces.QueueMessage, error) {
	out, err := q.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: aws.Int64(1),
		VisibilityTimeout:   aws.Int64(visibilityTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive message: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, models.ErrNoMessage
	}
	msg := out.Messages[0]
	return &interfaces.QueueMessage{
		Body:          aws.StringValue(msg.Body),
		ReceiptHandle: aws.StringValue(msg.ReceiptHandle),
	}, nil
}

func (q *SQSQueue) Delete(ctx context.Context, msg *interfaces.QueueMessage) error {
	_, err := q.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(msg.ReceiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (q *SQSQueue) ExtendVisibility(ctx context.Context, msg *interfaces.QueueMessage, seconds int64) error {
	_, err := q.client.ChangeMessageVisibilityWithContext(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.queueURL),
		ReceiptHandle:     aws.String(msg.ReceiptHandle),
		VisibilityTimeout: aws.Int64(seconds),
	})
	if err != nil {
		return fmt.Errorf("failed to extend message visibility: %w", err)
	}
	q.logger.Debug().Int64("seconds", seconds).Msg("Extended message visibility")
	return nil
}
