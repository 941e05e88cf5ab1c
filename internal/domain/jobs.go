package domain

import (
	"context"
	"time"
)

// BroadcastJob — задача массовой рассылки текста всем активным подписчикам.
type BroadcastJob struct {
	ID          string    `json:"job_id"`
	Text        string    `json:"text"`
	RequestedBy int64     `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// BroadcastQueue — очередь задач рассылки.
type BroadcastQueue interface {
	Enqueue(ctx context.Context, job BroadcastJob) error
	Pop(ctx context.Context) (BroadcastJob, error)
}
