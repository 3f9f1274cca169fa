package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clientbridge/engagement/internal/apperror"
	"github.com/clientbridge/engagement/internal/db/models"
)

// Memory is an in-memory entity store with the same semantics as the gorm
// backend, including the conditional-write transition. It backs tests and
// database.driver=memory runs.
type Memory struct {
	mu            sync.RWMutex
	documents     map[string]models.SignableDocument
	fields        map[string]models.SignatureField
	requests      map[string]models.SignatureRequest
	signatures    map[string]models.DigitalSignature
	schedules     map[string]models.ScheduledUpdate
	progress      map[string]models.ProgressUpdate
	milestones    map[string]models.MilestoneUpdate
	notifications map[string]models.UpdateNotification
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		documents:     make(map[string]models.SignableDocument),
		fields:        make(map[string]models.SignatureField),
		requests:      make(map[string]models.SignatureRequest),
		signatures:    make(map[string]models.DigitalSignature),
		schedules:     make(map[string]models.ScheduledUpdate),
		progress:      make(map[string]models.ProgressUpdate),
		milestones:    make(map[string]models.MilestoneUpdate),
		notifications: make(map[string]models.UpdateNotification),
	}
}

func cloneDocument(d models.SignableDocument) models.SignableDocument {
	d.SignatureFields = nil
	return d
}

func cloneSchedule(s models.ScheduledUpdate) models.ScheduledUpdate {
	s.RecipientIDs = append([]string(nil), s.RecipientIDs...)
	return s
}

func cloneProgress(p models.ProgressUpdate) models.ProgressUpdate {
	p.PhotoRefs = append([]string(nil), p.PhotoRefs...)
	p.Milestones = nil
	return p
}

func (m *Memory) GetDocument(ctx context.Context, id string) (*models.SignableDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, apperror.NotFound("document %s", id)
	}
	doc = cloneDocument(doc)
	return &doc, nil
}

func (m *Memory) ListDocuments(ctx context.Context, filter DocumentFilter) ([]models.SignableDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var docs []models.SignableDocument
	for _, d := range m.documents {
		if filter.CreatedBy != "" && d.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.TemplatesOnly && !d.IsTemplate {
			continue
		}
		docs = append(docs, cloneDocument(d))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return docs, nil
}

func (m *Memory) InsertDocument(ctx context.Context, doc *models.SignableDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[doc.ID] = cloneDocument(*doc)
	return nil
}

func (m *Memory) ReplaceDocument(ctx context.Context, doc *models.SignableDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[doc.ID]; !ok {
		return apperror.NotFound("document %s", doc.ID)
	}
	m.documents[doc.ID] = cloneDocument(*doc)
	return nil
}

func (m *Memory) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.documents, id)
	return nil
}

func (m *Memory) ListFields(ctx context.Context, documentID string) ([]models.SignatureField, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var fields []models.SignatureField
	for _, f := range m.fields {
		if f.DocumentID == documentID {
			fields = append(fields, f)
		}
	}
	sort.Slice(fields, func(i, j int) bool {
		if fields[i].PageNumber != fields[j].PageNumber {
			return fields[i].PageNumber < fields[j].PageNumber
		}
		if fields[i].Y != fields[j].Y {
			return fields[i].Y < fields[j].Y
		}
		return fields[i].X < fields[j].X
	})
	return fields, nil
}

func (m *Memory) InsertField(ctx context.Context, field *models.SignatureField) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[field.ID] = *field
	return nil
}

func (m *Memory) DeleteField(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fields, id)
	return nil
}

func (m *Memory) DeleteFieldsByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, f := range m.fields {
		if f.DocumentID == documentID {
			delete(m.fields, id)
		}
	}
	return nil
}

func (m *Memory) GetRequest(ctx context.Context, id string) (*models.SignatureRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, apperror.NotFound("signature request %s", id)
	}
	return &req, nil
}

func (m *Memory) ListRequests(ctx context.Context, filter RequestFilter) ([]models.SignatureRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var reqs []models.SignatureRequest
	for _, r := range m.requests {
		if filter.DocumentID != "" && r.DocumentID != filter.DocumentID {
			continue
		}
		if filter.RequestedFrom != "" && r.RequestedFrom != filter.RequestedFrom {
			continue
		}
		if len(filter.Statuses) > 0 && !statusIn(r.Status, filter.Statuses) {
			continue
		}
		reqs = append(reqs, r)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].RequestedAt.After(reqs[j].RequestedAt) })
	return reqs, nil
}

func (m *Memory) ListOpenRequests(ctx context.Context) ([]models.SignatureRequest, error) {
	return m.ListRequests(ctx, RequestFilter{
		Statuses: []models.RequestStatus{models.RequestPending, models.RequestViewed},
	})
}

func (m *Memory) InsertRequest(ctx context.Context, req *models.SignatureRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = *req
	return nil
}

func (m *Memory) TransitionRequest(ctx context.Context, id string, from []models.RequestStatus, apply func(*models.SignatureRequest)) (*models.SignatureRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, apperror.NotFound("signature request %s", id)
	}
	if !statusIn(req.Status, from) {
		return nil, apperror.InvalidState("signature request %s is %s", id, req.Status)
	}
	// apply mutates a copy; the map write installs it atomically under the
	// lock, so readers never observe a half-mutated entity.
	apply(&req)
	m.requests[id] = req
	return &req, nil
}

func (m *Memory) GetSignature(ctx context.Context, id string) (*models.DigitalSignature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sig, ok := m.signatures[id]
	if !ok {
		return nil, apperror.NotFound("signature %s", id)
	}
	return &sig, nil
}

func (m *Memory) InsertSignature(ctx context.Context, sig *models.DigitalSignature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signatures[sig.ID] = *sig
	return nil
}

func (m *Memory) ReplaceSignature(ctx context.Context, sig *models.DigitalSignature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.signatures[sig.ID]; !ok {
		return apperror.NotFound("signature %s", sig.ID)
	}
	m.signatures[sig.ID] = *sig
	return nil
}

func (m *Memory) DeleteSignature(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.signatures, id)
	return nil
}

func (m *Memory) GetSchedule(ctx context.Context, id string) (*models.ScheduledUpdate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sched, ok := m.schedules[id]
	if !ok {
		return nil, apperror.NotFound("schedule %s", id)
	}
	sched = cloneSchedule(sched)
	return &sched, nil
}

func (m *Memory) ListSchedulesByProject(ctx context.Context, projectID string) ([]models.ScheduledUpdate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var scheds []models.ScheduledUpdate
	for _, s := range m.schedules {
		if s.ProjectID == projectID {
			scheds = append(scheds, cloneSchedule(s))
		}
	}
	sort.Slice(scheds, func(i, j int) bool { return scheds[i].CreatedAt.Before(scheds[j].CreatedAt) })
	return scheds, nil
}

func (m *Memory) ListDueSchedules(ctx context.Context, now time.Time) ([]models.ScheduledUpdate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var scheds []models.ScheduledUpdate
	for _, s := range m.schedules {
		if !s.IsActive || s.NextScheduledAt == nil {
			continue
		}
		if s.NextScheduledAt.After(now) {
			continue
		}
		scheds = append(scheds, cloneSchedule(s))
	}
	return scheds, nil
}

func (m *Memory) InsertSchedule(ctx context.Context, sched *models.ScheduledUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[sched.ID] = cloneSchedule(*sched)
	return nil
}

func (m *Memory) ReplaceSchedule(ctx context.Context, sched *models.ScheduledUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[sched.ID]; !ok {
		return apperror.NotFound("schedule %s", sched.ID)
	}
	m.schedules[sched.ID] = cloneSchedule(*sched)
	return nil
}

func (m *Memory) DeleteSchedule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, id)
	return nil
}

func (m *Memory) GetProgressUpdate(ctx context.Context, id string) (*models.ProgressUpdate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	upd, ok := m.progress[id]
	if !ok {
		return nil, apperror.NotFound("progress update %s", id)
	}
	upd = cloneProgress(upd)
	return &upd, nil
}

func (m *Memory) ListProgressByProject(ctx context.Context, projectID string) ([]models.ProgressUpdate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var upds []models.ProgressUpdate
	for _, u := range m.progress {
		if u.ProjectID == projectID {
			upds = append(upds, cloneProgress(u))
		}
	}
	sort.Slice(upds, func(i, j int) bool { return upds[i].CreatedAt.After(upds[j].CreatedAt) })
	return upds, nil
}

func (m *Memory) LatestSharedUpdate(ctx context.Context, projectID string) (*models.ProgressUpdate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *models.ProgressUpdate
	for _, u := range m.progress {
		if u.ProjectID != projectID || !u.IsSharedWithClient {
			continue
		}
		if latest == nil || u.CreatedAt.After(latest.CreatedAt) {
			u := cloneProgress(u)
			latest = &u
		}
	}
	if latest == nil {
		return nil, apperror.NotFound("shared progress update for project %s", projectID)
	}
	return latest, nil
}

func (m *Memory) InsertProgressUpdate(ctx context.Context, upd *models.ProgressUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[upd.ID] = cloneProgress(*upd)
	return nil
}

func (m *Memory) ReplaceProgressUpdate(ctx context.Context, upd *models.ProgressUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.progress[upd.ID]; !ok {
		return apperror.NotFound("progress update %s", upd.ID)
	}
	m.progress[upd.ID] = cloneProgress(*upd)
	return nil
}

func (m *Memory) GetMilestone(ctx context.Context, id string) (*models.MilestoneUpdate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.milestones[id]
	if !ok {
		return nil, apperror.NotFound("milestone %s", id)
	}
	return &ms, nil
}

func (m *Memory) ListMilestones(ctx context.Context, progressUpdateID string) ([]models.MilestoneUpdate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var mss []models.MilestoneUpdate
	for _, ms := range m.milestones {
		if ms.ProgressUpdateID == progressUpdateID {
			mss = append(mss, ms)
		}
	}
	sort.Slice(mss, func(i, j int) bool { return mss[i].MilestoneName < mss[j].MilestoneName })
	return mss, nil
}

func (m *Memory) InsertMilestone(ctx context.Context, ms *models.MilestoneUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.milestones[ms.ID] = *ms
	return nil
}

func (m *Memory) ReplaceMilestone(ctx context.Context, ms *models.MilestoneUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.milestones[ms.ID]; !ok {
		return apperror.NotFound("milestone %s", ms.ID)
	}
	m.milestones[ms.ID] = *ms
	return nil
}

func (m *Memory) GetNotification(ctx context.Context, id string) (*models.UpdateNotification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, apperror.NotFound("notification %s", id)
	}
	return &n, nil
}

func (m *Memory) ListNotificationsByUpdate(ctx context.Context, progressUpdateID string) ([]models.UpdateNotification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ns []models.UpdateNotification
	for _, n := range m.notifications {
		if n.ProgressUpdateID == progressUpdateID {
			ns = append(ns, n)
		}
	}
	sort.Slice(ns, func(i, j int) bool { return ns[i].SentAt.Before(ns[j].SentAt) })
	return ns, nil
}

func (m *Memory) InsertNotification(ctx context.Context, n *models.UpdateNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[n.ID] = *n
	return nil
}

func (m *Memory) ReplaceNotification(ctx context.Context, n *models.UpdateNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notifications[n.ID]; !ok {
		return apperror.NotFound("notification %s", n.ID)
	}
	m.notifications[n.ID] = *n
	return nil
}
