package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"throttle-quadrant/internal/axis"
	"throttle-quadrant/internal/logger"
	"throttle-quadrant/internal/types"
)

const (
	// Hash holding the controller state, also used as the notify channel
	StateHash = "throttle-quadrant"
	// List polled for remote commands (LPUSH throttle-quadrant:command calibrate)
	CommandList = "throttle-quadrant:command"
)

type Callbacks struct {
	CommandCallback func(string) error // "calibrate", "reset-calibration"
}

type RedisClient struct {
	client    *redis.Client
	callbacks Callbacks
	logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewRedisClient(host string, port int, l *logger.Logger, callbacks Callbacks) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", host, port),
			DB:   0,
		}),
		callbacks: callbacks,
		logger:    l,
		ctx:       ctx,
		cancel:    cancel,
	}
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

// StartListening starts the command list listener
func (r *RedisClient) StartListening() error {
	if r.callbacks.CommandCallback == nil {
		return nil
	}
	r.wg.Add(1)
	go r.listCommandListener(CommandList, r.handleCommand)
	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
			// Short BRPOP timeout so cancellation is noticed
			result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if errors.Is(err, context.Canceled) {
					r.logger.Infof("Context cancelled, exiting %s listener", key)
					return
				}
				r.logger.Warnf("Error reading from %s list: %v", key, err)
				select {
				case <-r.ctx.Done():
				case <-time.After(time.Second):
				}
				continue
			}

			if len(result) >= 2 { // BRPOP returns [key, value]
				value := result[1]
				r.logger.Debugf("Received command from %s: %s", key, value)
				if err := handler(value); err != nil {
					r.logger.Warnf("Error handling %s command: %v", key, err)
				}
			}
		}
	}
}

func (r *RedisClient) handleCommand(value string) error {
	if r.callbacks.CommandCallback == nil {
		return nil
	}
	switch value {
	case "calibrate", "reset-calibration":
		return r.callbacks.CommandCallback(value)
	default:
		r.logger.Infof("Invalid command value: %s", value)
		return fmt.Errorf("invalid command: %s", value)
	}
}

// publishHashSet atomically updates hash fields and publishes a notification
func (r *RedisClient) publishHashSet(hash string, fields map[string]interface{}, channel, payload string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, hash, fields)
	pipe.Publish(r.ctx, channel, payload)
	_, err := pipe.Exec(r.ctx)
	return err
}

func (r *RedisClient) PublishStage(stage types.Stage) error {
	r.logger.Infof("Publishing stage: %s", stage)
	err := r.publishHashSet(StateHash, map[string]interface{}{
		"stage":           string(stage),
		"stage:timestamp": time.Now().Format(time.RFC3339),
	}, StateHash, "stage")
	if err != nil {
		r.logger.Warnf("Failed to publish stage: %v", err)
		return err
	}
	return nil
}

func (r *RedisClient) PublishCalibration(bounds []axis.Bounds) error {
	r.logger.Debugf("Publishing calibration: %v", bounds)
	if err := r.publishHashSet(StateHash, calibrationFields(bounds), StateHash, "calibration"); err != nil {
		r.logger.Warnf("Failed to publish calibration: %v", err)
		return err
	}
	return nil
}

func (r *RedisClient) PublishSnapshot(s types.Snapshot) error {
	return r.publishHashSet(StateHash, snapshotFields(s), StateHash, "report")
}

func calibrationFields(bounds []axis.Bounds) map[string]interface{} {
	fields := make(map[string]interface{}, 2*len(bounds))
	for i, b := range bounds {
		fields[fmt.Sprintf("axis:%d:min", i)] = b.Min
		fields[fmt.Sprintf("axis:%d:max", i)] = b.Max
	}
	return fields
}

func snapshotFields(s types.Snapshot) map[string]interface{} {
	fields := map[string]interface{}{
		"report:x":       s.Report.X,
		"report:y":       s.Report.Y,
		"report:z":       s.Report.Z,
		"report:buttons": s.Report.Buttons,
		"sensitivity":    s.Sensitivity,
		"reverse":        strconv.FormatBool(s.Reverse),
	}
	for i, v := range s.Raw {
		fields[fmt.Sprintf("raw:%d", i)] = v
	}
	return fields
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
