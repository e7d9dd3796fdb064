package queue

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// sqsAPI is the minimal SQS client surface the queue needs.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue implements Client on top of an AWS SQS queue. Visibility
// timeouts and redelivery are handled by SQS itself.
type SQSQueue struct {
	api      sqsAPI
	queueURL string
}

// NewSQSQueue wraps an existing SQS client.
func NewSQSQueue(api sqsAPI, queueURL string) *SQSQueue {
	return &SQSQueue{api: api, queueURL: queueURL}
}

// DialSQS resolves AWS credentials from the environment and returns a queue
// bound to the given region and queue URL.
func DialSQS(ctx context.Context, region, queueURL string) (*SQSQueue, error) {
	if queueURL == "" {
		return nil, errors.New("sqs queue url is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewSQSQueue(sqs.NewFromConfig(cfg), queueURL), nil
}

// Send enqueues one message body.
func (q *SQSQueue) Send(ctx context.Context, body []byte) error {
	_, err := q.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	return err
}

// Receive long-polls for up to max messages, asking SQS for the receive
// count so the worker can enforce its delivery budget.
func (q *SQSQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Delivery, error) {
	out, err := q.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     int32(wait / time.Second),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, err
	}

	deliveries := make([]Delivery, 0, len(out.Messages))
	for _, msg := range out.Messages {
		delivery := Delivery{DeliveryCount: 1}
		if msg.Body != nil {
			delivery.Body = []byte(*msg.Body)
		}
		if msg.ReceiptHandle != nil {
			delivery.ReceiptHandle = *msg.ReceiptHandle
		}
		if raw, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if count, err := strconv.Atoi(raw); err == nil && count > 0 {
				delivery.DeliveryCount = count
			}
		}
		deliveries = append(deliveries, delivery)
	}
	return deliveries, nil
}

// Delete acknowledges a delivery by receipt handle.
func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		var invalid *types.ReceiptHandleIsInvalid
		if errors.As(err, &invalid) {
			return ErrStaleReceipt
		}
		return err
	}
	return nil
}
