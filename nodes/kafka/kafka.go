// Package kafka provides source and sink nodes bridging a pipeline to Kafka
// topics. The source consumes records and emits them as buffers; the sink
// produces every incoming message's payload to a topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/flowdag/flowdag"
	"github.com/flowdag/flowdag/datatype"
)

func init() {
	flowdag.Register("kafka-source", func() (flowdag.Node, error) {
		return NewSource(), nil
	})
	flowdag.Register("kafka-sink", func() (flowdag.Node, error) {
		return NewSink(), nil
	})
}

const defaultMaxPollRecords = 1000

// ensureTopic creates topic if it does not exist yet.
func ensureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32) error {
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopics(ctx, partitions, 1, nil, topic)
	if err != nil {
		return err
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func configureCommon(params map[string]any, brokers *[]string, topic *string) (map[string]any, error) {
	rest := make(map[string]any)
	for key, val := range params {
		switch key {
		case "brokers":
			switch v := val.(type) {
			case []string:
				*brokers = v
			case []any:
				for _, e := range v {
					s, ok := e.(string)
					if !ok {
						return nil, fmt.Errorf("kafka: param %q: expected string elements, got %T", key, e)
					}
					*brokers = append(*brokers, s)
				}
			case string:
				*brokers = []string{v}
			default:
				return nil, fmt.Errorf("kafka: param %q: expected string list, got %T", key, val)
			}
		case "topic":
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("kafka: param %q: expected string, got %T", key, val)
			}
			*topic = s
		default:
			rest[key] = val
		}
	}
	return rest, nil
}

// Source consumes a Kafka topic and emits each record as a Buffer on Out.
// The record value becomes the payload and the record offset the sequence
// number, so downstream alignment works the same as for file replay.
type Source struct {
	flowdag.ThreadedNode

	Out *flowdag.Output

	brokers    []string
	topic      string
	group      string
	partitions int32

	client *kgo.Client
}

func NewSource() *Source {
	n := &Source{partitions: 1}
	flowdag.InitBase(n)
	n.Out = flowdag.NewOutput(n, flowdag.OutputConfig{Name: "out"})
	return n
}

func (n *Source) TypeName() string { return "kafka-source" }

func (n *Source) SetBrokers(brokers ...string) { n.brokers = brokers }
func (n *Source) SetTopic(topic string)        { n.topic = topic }
func (n *Source) SetGroup(group string)        { n.group = group }

// Configure accepts "brokers" (string list), "topic" (string), "group"
// (string) and "partitions" (int, used when the topic must be created).
func (n *Source) Configure(params map[string]any) error {
	rest, err := configureCommon(params, &n.brokers, &n.topic)
	if err != nil {
		return err
	}
	for key, val := range rest {
		switch key {
		case "group":
			s, ok := val.(string)
			if !ok {
				return fmt.Errorf("kafka: param %q: expected string, got %T", key, val)
			}
			n.group = s
		case "partitions":
			switch v := val.(type) {
			case int:
				n.partitions = int32(v)
			case int64:
				n.partitions = int32(v)
			case float64:
				n.partitions = int32(v)
			default:
				return fmt.Errorf("kafka: param %q: expected int, got %T", key, val)
			}
		default:
			return fmt.Errorf("kafka: unknown param %q", key)
		}
	}
	return nil
}

func (n *Source) BuildStage1() error {
	if len(n.brokers) == 0 || n.topic == "" {
		return fmt.Errorf("%w: kafka source needs brokers and topic", flowdag.ErrUnconfiguredNode)
	}
	return nil
}

// Start connects the consumer, creating the topic if needed.
func (n *Source) Start() error {
	if len(n.brokers) == 0 || n.topic == "" {
		return fmt.Errorf("%w: kafka source needs brokers and topic", flowdag.ErrUnconfiguredNode)
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(n.brokers...),
		kgo.ConsumeTopics(n.topic),
	}
	if n.group != "" {
		opts = append(opts, kgo.ConsumerGroup(n.group))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return err
	}
	if err := ensureTopic(context.Background(), client, n.topic, n.partitions); err != nil {
		client.Close()
		return err
	}
	n.client = client
	return n.ThreadedNode.Start()
}

func (n *Source) Run(ctx context.Context) error {
	log := n.Log()
	for {
		fetches := n.client.PollRecords(ctx, defaultMaxPollRecords)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				if errors.Is(fe.Err, context.Canceled) {
					return nil
				}
				log.Error("fetch error", "topic", fe.Topic, "partition", fe.Partition, "error", fe.Err)
			}
			return fetches.Err0()
		}

		var sendErr error
		fetches.EachRecord(func(r *kgo.Record) {
			if sendErr != nil {
				return
			}
			sendErr = n.Out.Send(ctx, &datatype.Buffer{
				Data:      r.Value,
				Seq:       r.Offset,
				Timestamp: r.Timestamp,
			})
		})
		if sendErr != nil {
			return sendErr
		}
	}
}

// Wait drains the consume loop, then closes the client.
func (n *Source) Wait() error {
	err := n.ThreadedNode.Wait()
	if n.client != nil {
		n.client.Close()
		n.client = nil
	}
	return err
}

// Sink produces every message arriving on In to a Kafka topic. The message
// payload becomes the record value and the sequence number the record key.
type Sink struct {
	flowdag.ThreadedNode

	In *flowdag.Input

	brokers    []string
	topic      string
	partitions int32

	client *kgo.Client
}

func NewSink() *Sink {
	n := &Sink{partitions: 1}
	flowdag.InitBase(n)
	n.In = flowdag.NewInput(n, flowdag.InputConfig{Name: "in", Kind: flowdag.InputStream})
	return n
}

func (n *Sink) TypeName() string { return "kafka-sink" }

func (n *Sink) SetBrokers(brokers ...string) { n.brokers = brokers }
func (n *Sink) SetTopic(topic string)        { n.topic = topic }

// Configure accepts "brokers" (string list), "topic" (string) and
// "partitions" (int, used when the topic must be created).
func (n *Sink) Configure(params map[string]any) error {
	rest, err := configureCommon(params, &n.brokers, &n.topic)
	if err != nil {
		return err
	}
	for key, val := range rest {
		switch key {
		case "partitions":
			switch v := val.(type) {
			case int:
				n.partitions = int32(v)
			case int64:
				n.partitions = int32(v)
			case float64:
				n.partitions = int32(v)
			default:
				return fmt.Errorf("kafka: param %q: expected int, got %T", key, val)
			}
		default:
			return fmt.Errorf("kafka: unknown param %q", key)
		}
	}
	return nil
}

func (n *Sink) BuildStage1() error {
	if len(n.brokers) == 0 || n.topic == "" {
		return fmt.Errorf("%w: kafka sink needs brokers and topic", flowdag.ErrUnconfiguredNode)
	}
	return nil
}

// Start connects the producer, creating the topic if needed.
func (n *Sink) Start() error {
	if len(n.brokers) == 0 || n.topic == "" {
		return fmt.Errorf("%w: kafka sink needs brokers and topic", flowdag.ErrUnconfiguredNode)
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(n.brokers...),
		kgo.DefaultProduceTopic(n.topic),
	)
	if err != nil {
		return err
	}
	if err := ensureTopic(context.Background(), client, n.topic, n.partitions); err != nil {
		client.Close()
		return err
	}
	n.client = client
	return n.ThreadedNode.Start()
}

func (n *Sink) Run(ctx context.Context) error {
	count := 0
	for {
		msg, err := n.In.Get(ctx)
		if errors.Is(err, flowdag.ErrQueueClosed) {
			n.Log().Debug("kafka sink input closed", "produced", count)
			return nil
		}
		if err != nil {
			return err
		}

		rec := &kgo.Record{
			Key: []byte(strconv.FormatInt(msg.Sequence(), 10)),
		}
		if p, ok := msg.(datatype.Payloader); ok {
			rec.Value = p.Payload()
		}
		if perr := n.client.ProduceSync(ctx, rec).FirstErr(); perr != nil {
			if errors.Is(perr, context.Canceled) {
				return nil
			}
			return perr
		}
		count++
	}
}

// Wait drains the produce loop, flushes outstanding records and closes the
// client.
func (n *Sink) Wait() error {
	err := n.ThreadedNode.Wait()
	if n.client != nil {
		if ferr := n.client.Flush(context.Background()); err == nil {
			err = ferr
		}
		n.client.Close()
		n.client = nil
	}
	return err
}
