package awstest

import (
	"context"
	"fmt"
	"io"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Object is a blob held by S3.
type Object struct {
	Body        []byte
	ContentType string
}

// S3 keeps objects per bucket and key.
type S3 struct {
	mu      sync.Mutex
	objects map[string]Object

	PutErr    error
	DeleteErr error
}

func NewS3() *S3 {
	return &S3{objects: map[string]Object{}}
}

func (s *S3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if s.PutErr != nil {
		return nil, s.PutErr
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[sdkaws.ToString(params.Bucket)+"/"+sdkaws.ToString(params.Key)] = Object{
		Body:        body,
		ContentType: sdkaws.ToString(params.ContentType),
	}
	return &s3.PutObjectOutput{}, nil
}

func (s *S3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if s.DeleteErr != nil {
		return nil, s.DeleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, sdkaws.ToString(params.Bucket)+"/"+sdkaws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// Object returns the object at bucket/key.
func (s *S3) Object(bucket, key string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[bucket+"/"+key]
	return o, ok
}

// Keys lists every stored bucket/key.
func (s *S3) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

// SQS records sent messages.
type SQS struct {
	mu   sync.Mutex
	Sent []*sqs.SendMessageInput
	Err  error
}

func (q *SQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if q.Err != nil {
		return nil, q.Err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Sent = append(q.Sent, params)
	return &sqs.SendMessageOutput{MessageId: sdkaws.String(fmt.Sprintf("msg-%d", len(q.Sent)))}, nil
}

// CloudWatch records metric batches.
type CloudWatch struct {
	mu   sync.Mutex
	Data []*cloudwatch.PutMetricDataInput
	Err  error
}

func (c *CloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Data = append(c.Data, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}
