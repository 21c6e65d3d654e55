package memory

import (
	"context"
	"sync"

	"github.com/finbook/event-pipeline-service/internal/domain/model"
	"github.com/finbook/event-pipeline-service/internal/storage"
)

// Interface guards
var (
	_ storage.AuditStore        = (*AuditLog)(nil)
	_ storage.NotificationStore = (*NotificationLog)(nil)
	_ storage.FriendFeedStore   = (*FriendFeed)(nil)
)

// AuditLog is the in-process audit trail used by tests and local runs.
type AuditLog struct {
	mu      sync.RWMutex
	records []*model.AuditRecord
}

func NewAuditLog() *AuditLog { return &AuditLog{} }

func (s *AuditLog) Append(_ context.Context, rec *model.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *AuditLog) Records() []*model.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*model.AuditRecord(nil), s.records...)
}

// NotificationLog is the in-process notification store.
type NotificationLog struct {
	mu      sync.RWMutex
	records []*model.Notification
}

func NewNotificationLog() *NotificationLog { return &NotificationLog{} }

func (s *NotificationLog) Append(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, n)
	return nil
}

func (s *NotificationLog) Records() []*model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*model.Notification(nil), s.records...)
}

// FriendFeed is the in-process friend-activity feed store.
type FriendFeed struct {
	mu      sync.RWMutex
	records []*model.FriendActivity
}

func NewFriendFeed() *FriendFeed { return &FriendFeed{} }

func (s *FriendFeed) Append(_ context.Context, fa *model.FriendActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, fa)
	return nil
}

func (s *FriendFeed) Records() []*model.FriendActivity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*model.FriendActivity(nil), s.records...)
}
