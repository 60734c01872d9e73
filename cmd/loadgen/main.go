package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// scoreSubmission mirrors the wire format the server's Kafka consumer expects
type scoreSubmission struct {
	SessionID    string `json:"session_id"`
	FinalBill    int64  `json:"final_bill"`
	TotalSavings int64  `json:"total_savings"`
	Timestamp    string `json:"timestamp,omitempty"`
}

func randomSubmission() scoreSubmission {
	// Final bills cluster around a typical grocery run; savings are a
	// fraction of the bill so rankings look plausible.
	bill := int64(rand.Intn(20000) + 2000)
	savings := int64(float64(bill) * (0.05 + rand.Float64()*0.45))
	return scoreSubmission{
		SessionID:    uuid.New().String(),
		FinalBill:    bill,
		TotalSavings: savings,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "game-scores", "Kafka topic")
	totalSessions := flag.Int("sessions", 1000, "Number of game sessions to generate")
	rate := flag.Int("rate", 100, "Submissions per second (0 = as fast as possible)")
	duplicatePct := flag.Int("duplicates", 5, "Percentage of submissions that replay an earlier session")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Printf("score load generator: brokers=%s topic=%s sessions=%d rate=%d/s duplicates=%d%%\n",
		*brokers, *topic, *totalSessions, *rate, *duplicatePct)

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	sendMessage := func(sub scoreSubmission) {
		data, err := json.Marshal(sub)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(sub.SessionID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
		}
	}

	var interval time.Duration
	if *rate > 0 {
		interval = time.Second / time.Duration(*rate)
	}

	// Keep a window of recent sessions so the duplicate path gets exercised
	recent := make([]scoreSubmission, 0, 256)

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	sent := 0
loop:
	for sent < *totalSessions {
		select {
		case <-sigChan:
			fmt.Println("\ninterrupted")
			break loop
		case <-statsTicker.C:
			fmt.Printf("[%s] sent: %d | acked: %d | errors: %d\n",
				time.Now().Format("15:04:05"),
				sent,
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		default:
			var sub scoreSubmission
			if len(recent) > 0 && rand.Intn(100) < *duplicatePct {
				sub = recent[rand.Intn(len(recent))]
			} else {
				sub = randomSubmission()
				if len(recent) < cap(recent) {
					recent = append(recent, sub)
				} else {
					recent[rand.Intn(len(recent))] = sub
				}
			}

			sendMessage(sub)
			sent++

			if interval > 0 {
				time.Sleep(interval)
			}
		}
	}

	close(done)
	producer.AsyncClose()
	wg.Wait()

	fmt.Printf("done. sent: %d, acked: %d, errors: %d\n",
		sent, atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
}
