package utils

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/streadway/amqp"
)

// WorkItem is one unit of work handed to the delivery subsystem. The
// scheduler fires and forgets; confirmation flows back asynchronously through
// the progress tracker.
type WorkItem struct {
	ContactID         uint              `json:"contact_id"`
	CampaignID        uint              `json:"campaign_id"`
	SenderID          uint              `json:"sender_id"`
	StepID            uint              `json:"step_id"`
	StepNumber        int               `json:"step_number"`
	Subject           string            `json:"subject"`
	TemplateVariables map[string]string `json:"template_variables"`
}

// Delivery accepts work items for the external send pipeline.
type Delivery interface {
	Enqueue(item WorkItem) error
	Close() error
}

const deliveryQueueName = "campaign_sends"

// AMQPDelivery publishes work items to a durable RabbitMQ queue consumed by
// the delivery workers.
type AMQPDelivery struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
}

func NewAMQPDelivery(url string) (*AMQPDelivery, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		deliveryQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring queue: %w", err)
	}

	return &AMQPDelivery{conn: conn, channel: ch, queue: q}, nil
}

func (d *AMQPDelivery) Enqueue(item WorkItem) error {
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding work item: %w", err)
	}

	return d.channel.Publish(
		"",
		d.queue.Name,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

func (d *AMQPDelivery) Close() error {
	if d.channel != nil {
		d.channel.Close()
	}
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// LogDelivery is the fallback when no broker is configured: items are logged
// and dropped. Also handy in tests and dry runs.
type LogDelivery struct {
	Logger *log.Logger
	Items  []WorkItem
}

func (d *LogDelivery) Enqueue(item WorkItem) error {
	d.Items = append(d.Items, item)
	if d.Logger != nil {
		d.Logger.Printf("Delivery (no broker): contact %d step %d via sender %d", item.ContactID, item.StepNumber, item.SenderID)
	}
	return nil
}

func (d *LogDelivery) Close() error { return nil }
