package queue

import (
	"fmt"
	"time"

	"github.com/trestle-legal/docket/internal/util"
	"github.com/trestle-legal/docket/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// Queue names. Each work queue has a _retry companion whose TTL
// dead-letters messages back, and a _dlq for units that exhausted their
// retries.
const (
	IngestQueue = "ingest_queue"
	CaseQueue   = "case_queue"
)

// retryTTLCeiling bounds the per-message backoff on retry queues.
const retryTTLCeiling = 5 * time.Minute

func Init() *amqp091.Connection {
	user := util.GetEnv("RABBITMQ_USER")
	pass := util.GetEnv("RABBITMQ_PASSWORD")
	host := util.GetEnv("RABBITMQ_HOST")
	port := util.GetEnv("RABBITMQ_PORT")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	for _, name := range queueNames {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			logger.Fatal("QueueDeclare failed", "queue", name, "err", err)
		}

		dlqName := name + "_dlq"
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			logger.Fatal("QueueDeclare failed", "queue", dlqName, "err", err)
		}

		// Messages parked here dead-letter back onto the work queue
		// when their per-message expiration (or the ceiling) lapses.
		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(retryTTLCeiling.Milliseconds()),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			logger.Fatal("QueueDeclare failed", "queue", retryName, "err", err)
		}
	}

	return nil
}

// PublishFIFO publishes a persistent message onto a work queue.
func PublishFIFO(ch *amqp091.Channel, queueName string, data []byte) error {
	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return ch.Publish(
		"",
		q.Name,
		false,
		false,
		publishing,
	)
}

// PublishRetry parks a failed message on the queue's retry companion
// with a per-message expiration that doubles each attempt.
func PublishRetry(ch *amqp091.Channel, queueName string, data []byte, headers amqp091.Table, retries int) error {
	base := time.Duration(util.GetEnvInt("RETRY_BASE_SECS", 10)) * time.Second
	delay := util.BackoffDelay(base, retries, retryTTLCeiling)

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Expiration:   fmt.Sprintf("%d", delay.Milliseconds()),
	}

	return ch.Publish(
		"",
		queueName+"_retry",
		false,
		false,
		publishing,
	)
}
