//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/safe-speed-service/internal/adapter/kafka"
	"github.com/couchcryptid/safe-speed-service/internal/config"
	"github.com/couchcryptid/safe-speed-service/internal/domain"
	"github.com/couchcryptid/safe-speed-service/internal/observability"
	"github.com/couchcryptid/safe-speed-service/internal/service"
	"github.com/couchcryptid/safe-speed-service/internal/store"
	"github.com/couchcryptid/safe-speed-service/internal/store/memory"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHistoryTopic = "test-speed-history"

type stubWeather struct{ snapshot domain.WeatherSnapshot }

func (s stubWeather) FetchCurrent(context.Context, float64, float64) (domain.WeatherSnapshot, error) {
	return s.snapshot, nil
}

type publishedEntry struct {
	Entry   domain.SpeedHistoryEntry
	Key     string
	Headers map[string]string
}

func readPublished(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedEntry {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from history topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var entry domain.SpeedHistoryEntry
	require.NoError(t, json.Unmarshal(msg.Value, &entry), "unmarshal history message")

	return publishedEntry{Entry: entry, Key: string(msg.Key), Headers: headers}
}

// TestRecalculatePublishesHistory drives SpeedService.Recalculate against a
// real broker and checks that every stored entry reaches the topic intact.
func TestRecalculatePublishesHistory(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testHistoryTopic)

	cfg := &config.Config{
		KafkaBrokers:      []string{broker},
		KafkaHistoryTopic: testHistoryTopic,
		HistoryLimit:      500,
		DefaultLat:        45.5017,
		DefaultLon:        -73.5673,
	}

	publisher := kafka.NewPublisher(cfg, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	metrics := observability.NewMetricsForTesting()
	kv := store.NewKV(memory.New(), metrics, discardLogger())
	weather := stubWeather{snapshot: domain.WeatherSnapshot{
		TempC:             -3,
		PrecipitationMm:   1.2,
		PrecipitationType: domain.PrecipitationSnow,
		WindKph:           45,
		TimeISO:           "2024-01-10T06:00",
	}}
	svc := service.NewSpeedService(kv, weather, publisher, cfg, metrics, discardLogger())

	require.NoError(t, svc.SaveConfig(ctx, domain.SpeedConfig{
		BaseSpeedLimit:        100,
		Surface:               domain.SurfaceGravel,
		DayPeriod:             domain.DayPeriodNight,
		EnableExternalWeather: true,
	}))

	withWeather, err := svc.Recalculate(ctx, service.RecalcRequest{UseExternalWeather: true})
	require.NoError(t, err)
	withoutWeather, err := svc.Recalculate(ctx, service.RecalcRequest{UseExternalWeather: false})
	require.NoError(t, err)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testHistoryTopic,
		GroupID:     fmt.Sprintf("test-history-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	first := readPublished(ctx, t, consumer)
	second := readPublished(ctx, t, consumer)

	assert.Equal(t, "gravel", first.Key)
	assert.Equal(t, "snow", first.Headers["weather"])
	assert.Equal(t, "night", first.Headers["day_period"])
	assert.Equal(t, withWeather.Entry, first.Entry)
	assert.True(t, first.Entry.Consistent())

	assert.Equal(t, "none", second.Headers["weather"])
	assert.Equal(t, withoutWeather.Entry, second.Entry)
	assert.True(t, second.Entry.Consistent())

	// Stored history is newest first; the topic is oldest first.
	history := svc.History(ctx)
	require.Len(t, history, 2)
	assert.Equal(t, second.Entry, history[0])
	assert.Equal(t, first.Entry, history[1])
}
