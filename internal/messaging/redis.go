package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vehicle-control/internal/codec"
	"vehicle-control/internal/logger"
	"vehicle-control/internal/metrics"
	"vehicle-control/internal/types"

	"github.com/redis/go-redis/v9"
)

// Inbound list keys, fed with LPUSH by external producers.
const (
	KeyJoy      = "vehicle-control:joy"
	KeySafety   = "vehicle-control:safety"
	KeyBattery  = "vehicle-control:battery"
	KeyOdometry = "vehicle-control:odometry"
)

// listRetryDelay is how long a list listener waits after a read error.
const listRetryDelay = time.Second

// ChannelSim carries SimFrame messages from the simulator.
const ChannelSim = "vehicle-control:sim"

// Outbound hash and its fields. Every update is also announced on a channel
// of the same name with the field as payload.
const (
	HashKey      = "vehicle-control"
	FieldFsm     = "fsm"
	FieldCmdVel  = "cmd_vel"
	FieldRatesSp = "rates_sp"
)

// Sim frame topics
const (
	SimTopicClock     = "sim_clock"
	SimTopicNavSatFix = "nav_sat_fix"
	SimTopicImu       = "imu"
	SimTopicBattery   = "battery_state"
)

// SimFrame is one simulator message: the topic name and its CBOR payload.
type SimFrame struct {
	Topic   string           `cbor:"topic"`
	Payload codec.RawMessage `cbor:"payload"`
}

// Callbacks receive decoded inbound messages. A nil callback discards its
// messages.
type Callbacks struct {
	Joy      func(types.Joy)
	Safety   func(types.Safety)
	Battery  func(types.BatteryState)
	Odometry func(types.Odometry)

	SimClock   func(types.SimClock)
	NavSatFix  func(types.NavSatFix)
	Imu        func(types.Imu)
	SimBattery func(types.BatteryState)
}

func (c Callbacks) wantsSim() bool {
	return c.SimClock != nil || c.NavSatFix != nil || c.Imu != nil || c.SimBattery != nil
}

type RedisClient struct {
	client     *redis.Client
	callbacks  Callbacks
	logger     *logger.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	retryDelay time.Duration
}

func NewRedisClient(host string, port int, l *logger.Logger, callbacks Callbacks) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", host, port),
			DB:   0,
		}),
		callbacks:  callbacks,
		logger:     l,
		ctx:        ctx,
		cancel:     cancel,
		retryDelay: listRetryDelay,
	}
}

// SetCallbacks replaces the callbacks. Call it before StartListening.
func (r *RedisClient) SetCallbacks(callbacks Callbacks) {
	r.callbacks = callbacks
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		r.logger.Infof("Redis connection failed: %v", err)
		return fmt.Errorf("Redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// StartListening starts the list listeners, and the simulator listener when
// any simulator callback is set.
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")

	if r.callbacks.wantsSim() {
		pubsub := r.client.Subscribe(r.ctx, ChannelSim)
		r.logger.Infof("Subscribed to Redis channel: %s", ChannelSim)
		r.wg.Add(1)
		go r.simListener(pubsub)
	}

	r.wg.Add(4)
	go r.listCommandListener(KeyJoy, r.handleJoy)
	go r.listCommandListener(KeySafety, r.handleSafety)
	go r.listCommandListener(KeyBattery, r.handleBattery)
	go r.listCommandListener(KeyOdometry, r.handleOdometry)

	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
			// Use BRPOP with a short timeout to allow periodic context cancellation checks
			result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if errors.Is(err, context.Canceled) {
					r.logger.Infof("Context cancelled, exiting %s listener", key)
					return
				}
				r.logger.Infof("Error reading from %s list: %v", key, err)
				if !r.waitRetry() {
					r.logger.Infof("Context cancelled, exiting %s listener", key)
					return
				}
				continue
			}

			if len(result) >= 2 { // BRPOP returns [key, value]
				if err := handler(result[1]); err != nil {
					r.logger.Warnf("Dropping %s message: %v", key, err)
				}
			}
		}
	}
}

// waitRetry sleeps for the retry delay. It returns false if the client was
// closed meanwhile.
func (r *RedisClient) waitRetry() bool {
	t := time.NewTimer(r.retryDelay)
	defer t.Stop()
	select {
	case <-r.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// decode unmarshals data and hands the result to cb. Failures are counted
// against key.
func decode[T any](key string, data []byte, cb func(T)) error {
	var v T
	if err := codec.Unmarshal(data, &v); err != nil {
		metrics.BridgeDropped.WithLabelValues(key).Inc()
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	if cb != nil {
		cb(v)
	}
	return nil
}

func (r *RedisClient) handleJoy(value string) error {
	return decode(KeyJoy, []byte(value), r.callbacks.Joy)
}

func (r *RedisClient) handleSafety(value string) error {
	return decode(KeySafety, []byte(value), r.callbacks.Safety)
}

func (r *RedisClient) handleBattery(value string) error {
	return decode(KeyBattery, []byte(value), r.callbacks.Battery)
}

func (r *RedisClient) handleOdometry(value string) error {
	return decode(KeyOdometry, []byte(value), r.callbacks.Odometry)
}

func (r *RedisClient) simListener(pubsub *redis.PubSub) {
	defer r.wg.Done()
	defer pubsub.Close()

	r.logger.Infof("Starting simulator message listener")
	channel := pubsub.Channel()

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting simulator listener")
			return
		case msg, ok := <-channel:
			if !ok || msg == nil {
				r.logger.Fatalf("Redis connection lost, exiting to allow systemd restart")
			}
			if err := r.handleSimFrame(msg.Payload); err != nil {
				r.logger.Warnf("Dropping simulator message: %v", err)
			}
		}
	}
}

func (r *RedisClient) handleSimFrame(payload string) error {
	var frame SimFrame
	if err := codec.Unmarshal([]byte(payload), &frame); err != nil {
		metrics.BridgeDropped.WithLabelValues(ChannelSim).Inc()
		return fmt.Errorf("failed to decode sim frame: %w", err)
	}

	switch frame.Topic {
	case SimTopicClock:
		return decode(SimTopicClock, frame.Payload, r.callbacks.SimClock)
	case SimTopicNavSatFix:
		return decode(SimTopicNavSatFix, frame.Payload, r.callbacks.NavSatFix)
	case SimTopicImu:
		return decode(SimTopicImu, frame.Payload, r.callbacks.Imu)
	case SimTopicBattery:
		return decode(SimTopicBattery, frame.Payload, r.callbacks.SimBattery)
	default:
		metrics.BridgeDropped.WithLabelValues(ChannelSim).Inc()
		return fmt.Errorf("unknown sim topic %q", frame.Topic)
	}
}

// publishHashSet is a helper that atomically updates a hash field and publishes a notification
func (r *RedisClient) publishHashSet(hash, field string, value interface{}, channel, payload string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, hash, field, value)
	pipe.Publish(r.ctx, channel, payload)
	_, err := pipe.Exec(r.ctx)
	return err
}

func (r *RedisClient) publishEncoded(field string, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		metrics.BridgeDropped.WithLabelValues(field).Inc()
		return fmt.Errorf("failed to encode %s: %w", field, err)
	}
	if err := r.publishHashSet(HashKey, field, data, HashKey, field); err != nil {
		return fmt.Errorf("failed to publish %s: %w", field, err)
	}
	return nil
}

func (r *RedisClient) PublishFsm(f types.Fsm) error {
	return r.publishEncoded(FieldFsm, f)
}

func (r *RedisClient) PublishCmdVel(t types.Twist) error {
	return r.publishEncoded(FieldCmdVel, t)
}

func (r *RedisClient) PublishRatesSp(v types.Vector3) error {
	return r.publishEncoded(FieldRatesSp, v)
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()

	// Wait for all goroutines to finish with a timeout
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Infof("All Redis goroutines finished")
	case <-time.After(5 * time.Second):
		r.logger.Infof("Timeout waiting for Redis goroutines to finish")
	}

	return r.client.Close()
}
