// Package events はドメインイベントの発行を提供する。
// KAFKA_BROKERSが設定されている場合はKafkaへ、未設定の場合はどこにも送らない。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// イベント種別
const (
	TypeLogCreated   = "log.created"
	TypeLogCheered   = "log.cheered"
	TypeUserFollowed = "user.followed"
)

// Event は発行されるドメインイベント。
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	SubjectID  string    `json:"subject_id,omitempty"` // 記録IDやフォロー先ユーザーID
	Activity   string    `json:"activity,omitempty"`
	Value      float64   `json:"value,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher はイベント発行のインターフェース。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Emit はイベントを発行する。失敗はログに記録するのみで呼び出し元には返さない。
func Emit(ctx context.Context, p Publisher, event Event) {
	if p == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := p.Publish(ctx, event); err != nil {
		slog.Warn("failed to publish event",
			slog.String("type", event.Type),
			slog.String("user_id", event.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// KafkaPublisher はKafkaトピックへイベントを書き込む。
// メッセージキーにはユーザーIDを使い、同一ユーザーのイベント順序を保つ。
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher はKafkaPublisherを生成する。
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           50 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish はイベントをJSONでエンコードして書き込む。
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
		Time:  event.OccurredAt,
	}); err != nil {
		return fmt.Errorf("failed to write event to kafka: %w", err)
	}
	return nil
}

// Close はwriterを閉じ、未送信のメッセージをフラッシュする。
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher はイベントを破棄するPublisher実装。
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error { return nil }

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = NopPublisher{}
)
