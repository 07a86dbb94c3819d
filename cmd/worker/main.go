package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trestle-legal/docket/internal/queue"
	"github.com/trestle-legal/docket/internal/storage"
	"github.com/trestle-legal/docket/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/trestle-legal/docket/pkg/ai"
	ollamaai "github.com/trestle-legal/docket/pkg/ai/ollama"
	openaiai "github.com/trestle-legal/docket/pkg/ai/openai"
	"github.com/trestle-legal/docket/pkg/extract"
	"github.com/trestle-legal/docket/pkg/leaselock"
	loaders3 "github.com/trestle-legal/docket/pkg/loader/s3"
	"github.com/trestle-legal/docket/pkg/logger"
	"github.com/trestle-legal/docket/pkg/logger/console"
	pgxstore "github.com/trestle-legal/docket/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// Init s3 client
	s3Client := storage.NewS3Client(ctx)
	source := loaders3.NewSourceWithClient(util.GetEnvString("AWS_BUCKET", "docket"), s3Client)

	// Extractor
	adapter := util.GetEnv("AI_ADAPTER")
	var aiClient ai.Client
	var extractor extract.Extractor

	switch adapter {
	case "heuristic":
		extractor = extract.NewHeuristicExtractor()
	case "ollama":
		client, err := ollamaai.NewExtractionClient(ollamaai.NewExtractionClientParams{
			Model:   util.GetEnv("AI_EXTRACT_MODEL"),
			BaseURL: util.GetEnv("AI_CHAT_URL"),
			APIKey:  util.GetEnv("AI_CHAT_KEY"),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
		extractor = extract.NewAIExtractor(extract.NewAIExtractorParams{Client: client})
	default:
		client, err := openaiai.NewExtractionClient(openaiai.NewExtractionClientParams{
			Model:   util.GetEnv("AI_EXTRACT_MODEL"),
			BaseURL: util.GetEnv("AI_CHAT_URL"),
			APIKey:  util.GetEnv("AI_CHAT_KEY"),
		})
		if err != nil {
			logger.Fatal("Could not create OpenAI client", "err", err)
		}
		aiClient = client
		extractor = extract.NewAIExtractor(extract.NewAIExtractorParams{Client: client})
	}

	// Init pgx client
	pgConn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	billingStore := pgxstore.New(pgConn)
	locks := leaselock.New(pgConn)

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	queues := []string{queue.IngestQueue, queue.CaseQueue}
	if err := queue.SetupQueues(ch, queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	logger.Info("Listening for messages")

	// Create a single consumer channel with prefetch=1
	// This ensures only ONE message is delivered at a time across all queues
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				var processingErr error
				switch qm.queueName {
				case queue.IngestQueue:
					processingErr = queue.ProcessIngestMessage(ctx, source, extractor, billingStore, locks, string(qm.msg.Body), messageRetries(qm.msg))
				case queue.CaseQueue:
					processingErr = queue.ProcessCaseRegistered(ctx, billingStore, ch, string(qm.msg.Body))
				}

				// If there was an error send to retry or dead-letter, otherwise ack the message
				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					handleProcessingError(consumerCh, qm.msg, qm.queueName)
				} else {
					err = qm.msg.Ack(false)
					if err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				if aiClient != nil {
					metrics := aiClient.GetMetrics()
					logger.Info(
						"AI Metrics",
						"input_tokens", metrics.InputTokens,
						"output_tokens", metrics.OutputTokens,
						"total_tokens", metrics.TotalTokens,
					)
					aiClient.ResetMetrics()
				}

				processingDuration := time.Since(startTime)
				logger.Info("Processing time", "duration", processingDuration.Round(time.Millisecond).String())
				logger.Info("Waiting for next message")
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

func messageRetries(msg amqp.Delivery) int {
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			return int(v)
		}
	}
	return 0
}

func handleProcessingError(ch *amqp.Channel, msg amqp.Delivery, queueName string) {
	retries := messageRetries(msg)

	// If message has been retried 10 times, send to dead-letter
	if retries >= 10 {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = int32(retries + 1)

	pubErr := queue.PublishRetry(ch, queueName, msg.Body, headers, retries)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "queue", queueName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
