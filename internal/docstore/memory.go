// internal/docstore/memory.go
package docstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a map-backed Store for tests and smoke runs. Safe for
// concurrent use; returned documents are copies.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*Request
	// resources keyed by request_id, then url
	resources map[string]map[string]*Resource
	datasets  map[string]*Dataset
	assets    map[string][]Asset
	cards     map[string][]Card
	chats     map[string]*Chat
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:  make(map[string]*Request),
		resources: make(map[string]map[string]*Resource),
		datasets:  make(map[string]*Dataset),
		assets:    make(map[string][]Asset),
		cards:     make(map[string][]Card),
		chats:     make(map[string]*Chat),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) UpsertRequest(ctx context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	cp := *req
	cp.UpdatedAt = now
	if existing, ok := s.requests[req.RequestID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	s.requests[req.RequestID] = &cp
	return nil
}

func (s *MemoryStore) GetRequest(ctx context.Context, requestID string) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *MemoryStore) ListRequests(ctx context.Context) ([]Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Request, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SetRequestStatus(ctx context.Context, requestID string, status RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	req.Status = status
	req.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetRequestPersist(ctx context.Context, requestID string, persist bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	req.Persist = persist
	req.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DeleteRequest(ctx context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[requestID]; !ok {
		return ErrNotFound
	}
	delete(s.requests, requestID)
	delete(s.resources, requestID)
	return nil
}

func (s *MemoryStore) UpsertResource(ctx context.Context, res *Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byURL, ok := s.resources[res.RequestID]
	if !ok {
		byURL = make(map[string]*Resource)
		s.resources[res.RequestID] = byURL
	}

	now := time.Now().UTC()
	cp := *res
	cp.UpdatedAt = now
	if existing, ok := byURL[res.URL]; ok {
		// Re-discovery keeps the existing lifecycle state and blob.
		cp.CreatedAt = existing.CreatedAt
		cp.Status = existing.Status
		cp.Error = existing.Error
		cp.ContentBlobID = existing.ContentBlobID
		cp.ContentType = existing.ContentType
		cp.Filename = existing.Filename
		cp.SampledAt = existing.SampledAt
		cp.DownloadedAt = existing.DownloadedAt
	} else {
		cp.CreatedAt = now
	}
	byURL[res.URL] = &cp
	return nil
}

func (s *MemoryStore) CountResources(ctx context.Context, f ResourceFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	s.eachResource(f, func(*Resource) bool {
		n++
		return true
	})
	return n, nil
}

func (s *MemoryStore) ListResources(ctx context.Context, f ResourceFilter) ([]Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Resource
	s.eachResource(f, func(res *Resource) bool {
		out = append(out, *res)
		return f.Limit <= 0 || int64(len(out)) < f.Limit
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].URL < out[j].URL
	})
	return out, nil
}

// eachResource walks matching resources under s.mu; the visitor returns
// false to stop early.
func (s *MemoryStore) eachResource(f ResourceFilter, visit func(*Resource) bool) {
	scan := func(byURL map[string]*Resource) bool {
		for _, res := range byURL {
			if !matchResource(res, f) {
				continue
			}
			if !visit(res) {
				return false
			}
		}
		return true
	}

	if f.RequestID != "" {
		if byURL, ok := s.resources[f.RequestID]; ok {
			scan(byURL)
		}
		return
	}
	for _, byURL := range s.resources {
		if !scan(byURL) {
			return
		}
	}
}

func matchResource(res *Resource, f ResourceFilter) bool {
	if f.Query != "" && res.Query != f.Query {
		return false
	}
	if f.Modality != "" && res.Modality != f.Modality {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, st := range f.Statuses {
			if res.Status == st {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.HasBlob != nil {
		if *f.HasBlob != (res.ContentBlobID != "") {
			return false
		}
	}
	return true
}

func (s *MemoryStore) mutateResource(requestID, url string, mutate func(*Resource)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byURL, ok := s.resources[requestID]
	if !ok {
		return ErrNotFound
	}
	res, ok := byURL[url]
	if !ok {
		return ErrNotFound
	}
	mutate(res)
	res.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) MarkResourceSampled(ctx context.Context, requestID, url string) error {
	return s.mutateResource(requestID, url, func(res *Resource) {
		now := time.Now().UTC()
		res.Status = ResourceSampled
		res.SampledAt = &now
		res.Error = ""
	})
}

func (s *MemoryStore) MarkResourceError(ctx context.Context, requestID, url, errMsg string) error {
	return s.mutateResource(requestID, url, func(res *Resource) {
		res.Status = ResourceError
		res.Error = errMsg
	})
}

func (s *MemoryStore) MarkResourceDownloaded(ctx context.Context, requestID, url, blobID, contentType, filename string) error {
	return s.mutateResource(requestID, url, func(res *Resource) {
		now := time.Now().UTC()
		res.Status = ResourceDownloaded
		res.ContentBlobID = blobID
		res.ContentType = contentType
		res.Filename = filename
		res.DownloadedAt = &now
		res.Error = ""
	})
}

func (s *MemoryStore) ClearResourceBlob(ctx context.Context, requestID, url string) error {
	return s.mutateResource(requestID, url, func(res *Resource) {
		res.ContentBlobID = ""
	})
}

func (s *MemoryStore) InsertDataset(ctx context.Context, ds *Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ds
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.datasets[ds.DatasetID] = &cp
	return nil
}

func (s *MemoryStore) GetDataset(ctx context.Context, datasetID string) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, ok := s.datasets[datasetID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ds
	return &cp, nil
}

func (s *MemoryStore) ListDatasets(ctx context.Context) ([]Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Dataset, 0, len(s.datasets))
	for _, ds := range s.datasets {
		out = append(out, *ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteDataset(ctx context.Context, datasetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.datasets[datasetID]; !ok {
		return ErrNotFound
	}
	delete(s.datasets, datasetID)
	delete(s.assets, datasetID)
	return nil
}

func (s *MemoryStore) InsertAssets(ctx context.Context, assets []Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range assets {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		s.assets[a.DatasetID] = append(s.assets[a.DatasetID], a)
	}
	return nil
}

func (s *MemoryStore) ListAssets(ctx context.Context, datasetID string) ([]Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Asset, len(s.assets[datasetID]))
	copy(out, s.assets[datasetID])
	return out, nil
}

func (s *MemoryStore) InsertCard(ctx context.Context, card *Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *card
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.cards[card.DatasetID] = append(s.cards[card.DatasetID], cp)
	return nil
}

func (s *MemoryStore) LatestCard(ctx context.Context, datasetID string) (*Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cards := s.cards[datasetID]
	if len(cards) == 0 {
		return nil, ErrNotFound
	}
	latest := cards[0]
	for _, c := range cards[1:] {
		if c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	return &latest, nil
}

func (s *MemoryStore) AppendChatMessage(ctx context.Context, chatID, title string, msg ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	chat, ok := s.chats[chatID]
	if !ok {
		chat = &Chat{
			ChatID:    chatID,
			Title:     title,
			CreatedAt: now,
		}
		s.chats[chatID] = chat
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	chat.Messages = append(chat.Messages, msg)
	chat.UpdatedAt = now
	return nil
}

func (s *MemoryStore) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *chat
	cp.Messages = make([]ChatMessage, len(chat.Messages))
	copy(cp.Messages, chat.Messages)
	return &cp, nil
}

func (s *MemoryStore) ListChats(ctx context.Context) ([]Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Chat, 0, len(s.chats))
	for _, chat := range s.chats {
		cp := *chat
		cp.Messages = make([]ChatMessage, len(chat.Messages))
		copy(cp.Messages, chat.Messages)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteChat(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return ErrNotFound
	}
	delete(s.chats, chatID)
	return nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
