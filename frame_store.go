package capture

import "sync"

// FrameStore keeps the latest frame of every video source by id. Stored
// frames are owned copies, so producers may reuse their buffers.
//
// An id is locally owned while a local capture claims it. Remote pruning
// never removes a locally owned id.
type FrameStore struct {
	mu     sync.Mutex
	frames map[string]*VideoFrame
	local  map[string]bool
	remote map[string]bool
}

// NewFrameStore creates an empty store.
func NewFrameStore() *FrameStore {
	return &FrameStore{
		frames: make(map[string]*VideoFrame),
		local:  make(map[string]bool),
		remote: make(map[string]bool),
	}
}

// ClaimLocal marks id as owned by a local capture.
func (s *FrameStore) ClaimLocal(id string) {
	s.mu.Lock()
	s.local[id] = true
	s.mu.Unlock()
}

// ReleaseLocal drops the local claim on id and its frame, unless a remote
// source is also registered under id.
func (s *FrameStore) ReleaseLocal(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.local, id)
	if !s.remote[id] {
		delete(s.frames, id)
	}
}

// AddRemote marks id as a remote source.
func (s *FrameStore) AddRemote(id string) {
	s.mu.Lock()
	s.remote[id] = true
	s.mu.Unlock()
}

// RemoveRemote unregisters the remote source id and drops its frame when no
// local capture owns it.
func (s *FrameStore) RemoveRemote(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.remote, id)
	if !s.local[id] {
		delete(s.frames, id)
	}
}

// PruneRemote forgets every remote id not in keep. Frames of locally owned
// ids are kept.
func (s *FrameStore) PruneRemote(keep map[string]bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for id := range s.remote {
		if keep[id] {
			continue
		}
		delete(s.remote, id)
		removed = append(removed, id)
		if !s.local[id] {
			delete(s.frames, id)
		}
	}
	return removed
}

// Put stores a copy of frame as the latest for id, reusing the previous
// copy's buffers when possible.
func (s *FrameStore) Put(id string, frame *VideoFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[id] = frame.CopyInto(s.frames[id])
}

// Latest returns a copy of the latest frame for id.
func (s *FrameStore) Latest(id string) (*VideoFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.frames[id]
	if !ok {
		return nil, false
	}
	return f.Clone(), true
}

// RemoteIDs returns the registered remote ids.
func (s *FrameStore) RemoteIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.remote))
	for id := range s.remote {
		ids = append(ids, id)
	}
	return ids
}

// IsLocal reports whether a local capture owns id.
func (s *FrameStore) IsLocal(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local[id]
}

// Reset drops every frame and ownership mark except remote registrations.
func (s *FrameStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.frames {
		if !s.remote[id] {
			delete(s.frames, id)
		}
	}
	clear(s.local)
}
